package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/entitlement"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tollgate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tollgate/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Vault Store ====================

func (s *Store) CreateVault(ctx context.Context, v *vault.Vault) error {
	m := toVaultModel(v)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tollgate.ErrVaultAlreadyRegistered
	}
	return nil
}

func (s *Store) GetVault(ctx context.Context, vaultID string) (*vault.Vault, error) {
	m := new(vaultModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", vaultID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrVaultNotFound
		}
		return nil, err
	}
	return fromVaultModel(m), nil
}

// ==================== Subscription Store ====================

func (s *Store) SetSubscription(ctx context.Context, l *subscription.Listing, t *subscription.Terms) error {
	lm := toListingModel(l)
	_, err := s.sdb.NewInsert(lm).
		OnConflict("(owner, vault_id) DO UPDATE").
		Set("image_url = EXCLUDED.image_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}

	tm := toTermsModel(t)
	_, err = s.sdb.NewInsert(tm).
		OnConflict("(owner, vault_id) DO UPDATE").
		Set("price_amount_cents = EXCLUDED.price_amount_cents").
		Set("price_currency = EXCLUDED.price_currency").
		Set("duration_ns = EXCLUDED.duration_ns").
		Set("co_owner = EXCLUDED.co_owner").
		Set("split_fee_bps = EXCLUDED.split_fee_bps").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) DeleteSubscription(ctx context.Context, owner types.Principal, vaultID string) (bool, error) {
	res, err := s.sdb.NewDelete((*listingModel)(nil)).
		Where("owner = ?", string(owner)).
		Where("vault_id = ?", vaultID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	_, err = s.sdb.NewDelete((*termsModel)(nil)).
		Where("owner = ?", string(owner)).
		Where("vault_id = ?", vaultID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) GetTerms(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Terms, error) {
	m := new(termsModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", string(owner)).
		Where("vault_id = ?", vaultID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrTermsNotFound
		}
		return nil, err
	}
	return fromTermsModel(m), nil
}

func (s *Store) GetListing(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Listing, error) {
	m := new(listingModel)
	err := s.sdb.NewSelect(m).
		Where("owner = ?", string(owner)).
		Where("vault_id = ?", vaultID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrListingNotFound
		}
		return nil, err
	}
	return fromListingModel(m), nil
}

func (s *Store) ListDetails(ctx context.Context, owner types.Principal) ([]*subscription.Detail, error) {
	var listings []listingModel
	err := s.sdb.NewSelect(&listings).
		Where("owner = ?", string(owner)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var terms []termsModel
	err = s.sdb.NewSelect(&terms).
		Where("owner = ?", string(owner)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byVault := make(map[string]*termsModel, len(terms))
	for i := range terms {
		byVault[terms[i].VaultID] = &terms[i]
	}

	result := make([]*subscription.Detail, 0, len(listings))
	for i := range listings {
		tm, ok := byVault[listings[i].VaultID]
		if !ok {
			continue
		}
		result = append(result, &subscription.Detail{
			VaultID:     listings[i].VaultID,
			ImageURL:    listings[i].ImageURL,
			Price:       types.Money{Amount: tm.PriceAmountCents, Currency: tm.PriceCurrency},
			Duration:    time.Duration(tm.DurationNs),
			CoOwner:     types.Principal(tm.CoOwner),
			SplitFeeBps: tm.SplitFeeBps,
		})
	}
	return result, nil
}

func (s *Store) CountListings(ctx context.Context, owner types.Principal) (int, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM tollgate_listings WHERE owner = ?
	`, string(owner)).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// ==================== Grant Store ====================

func (s *Store) CreateGrant(ctx context.Context, g *entitlement.Grant) error {
	m := toGrantModel(g)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetGrant(ctx context.Context, grantID uint64) (*entitlement.Grant, error) {
	m := new(grantModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(grantID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrGrantNotFound
		}
		return nil, err
	}
	return fromGrantModel(m), nil
}

func (s *Store) GrantsByHolder(ctx context.Context, holder types.Principal) ([]*entitlement.Grant, error) {
	var models []grantModel
	err := s.sdb.NewSelect(&models).
		Where("holder = ?", string(holder)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*entitlement.Grant, len(models))
	for i := range models {
		result[i] = fromGrantModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateGrantHolder(ctx context.Context, grantID uint64, holder types.Principal) error {
	res, err := s.sdb.NewUpdate((*grantModel)(nil)).
		Set("holder = ?", string(holder)).
		Set("updated_at = ?", now()).
		Where("id = ?", int64(grantID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tollgate.ErrGrantNotFound
	}
	return nil
}

func (s *Store) MaxGrantID(ctx context.Context) (uint64, error) {
	var max int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(MAX(id), 0) FROM tollgate_grants
	`).Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return uint64(max), nil
}

func (s *Store) GrantsExpiredBetween(ctx context.Context, from, to time.Time) ([]*entitlement.Grant, error) {
	var models []grantModel
	err := s.sdb.NewSelect(&models).
		Where("expires_at > ?", from).
		Where("expires_at <= ?", to).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*entitlement.Grant, len(models))
	for i := range models {
		result[i] = fromGrantModel(&models[i])
	}
	return result, nil
}

// ==================== Deal Store ====================

func (s *Store) CreateDeal(ctx context.Context, d *entitlement.Deal) error {
	m := toDealModel(d)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDeal(ctx context.Context, grantID uint64) (*entitlement.Deal, error) {
	m := new(dealModel)
	err := s.sdb.NewSelect(m).
		Where("grant_id = ?", int64(grantID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrDealNotFound
		}
		return nil, err
	}
	return fromDealModel(m), nil
}

// ==================== Balance Store ====================

func (s *Store) Balance(ctx context.Context, account types.Principal, currency string) (types.Money, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", string(account)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero(currency), nil
		}
		return types.Money{}, err
	}
	return types.Money{Amount: m.AmountCents, Currency: currency}, nil
}

func (s *Store) AdjustBalance(ctx context.Context, account types.Principal, delta types.Money) error {
	if delta.Amount == 0 {
		return nil
	}

	if delta.Amount < 0 {
		// Guarded debit: the WHERE clause refuses any update that would
		// take the account negative, so 0 rows means not enough funds.
		res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
			Set("amount_cents = amount_cents + ?", delta.Amount).
			Set("updated_at = ?", now()).
			Where("account = ?", string(account)).
			Where("amount_cents >= ?", -delta.Amount).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return tollgate.ErrInsufficientBalance
		}
		return nil
	}

	t := now()
	m := &balanceModel{
		Account:     string(account),
		AmountCents: delta.Amount,
		Currency:    delta.Currency,
		CreatedAt:   t,
		UpdatedAt:   t,
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set("amount_cents = tollgate_balances.amount_cents + EXCLUDED.amount_cents").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
