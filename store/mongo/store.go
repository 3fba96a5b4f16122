package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/entitlement"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

// Collection name constants.
const (
	colVaults   = "tollgate_vaults"
	colListings = "tollgate_listings"
	colTerms    = "tollgate_terms"
	colGrants   = "tollgate_grants"
	colDeals    = "tollgate_deals"
	colBalances = "tollgate_balances"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tollgate collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tollgate/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tollgate.ErrVaultAlreadyRegistered
		}
		return fmt.Errorf("tollgate/mongo: create vault: %w", err)
	}
	return nil
}

func (s *Store) GetVault(ctx context.Context, vaultID string) (*vault.Vault, error) {
	var m vaultModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": vaultID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrVaultNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get vault: %w", err)
	}
	return fromVaultModel(&m), nil
}

// ==================== Subscription Store ====================

func (s *Store) SetSubscription(ctx context.Context, l *subscription.Listing, t *subscription.Terms) error {
	lm := toListingModel(l)
	_, err := s.mdb.NewUpdate(lm).
		Filter(bson.M{"_id": lm.Key}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"owner":      lm.Owner,
				"vault_id":   lm.VaultID,
				"image_url":  lm.ImageURL,
				"updated_at": lm.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"created_at": lm.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: set listing: %w", err)
	}

	tm := toTermsModel(t)
	_, err = s.mdb.NewUpdate(tm).
		Filter(bson.M{"_id": tm.Key}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"owner":              tm.Owner,
				"vault_id":           tm.VaultID,
				"price_amount_cents": tm.PriceAmountCents,
				"price_currency":     tm.PriceCurrency,
				"duration_ns":        tm.DurationNs,
				"co_owner":           tm.CoOwner,
				"split_fee_bps":      tm.SplitFeeBps,
				"updated_at":         tm.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"created_at": tm.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: set terms: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, owner types.Principal, vaultID string) (bool, error) {
	key := string(owner) + ":" + vaultID

	res, err := s.mdb.NewDelete((*listingModel)(nil)).
		Filter(bson.M{"_id": key}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tollgate/mongo: delete listing: %w", err)
	}
	deleted := res.DeletedCount()

	_, err = s.mdb.NewDelete((*termsModel)(nil)).
		Filter(bson.M{"_id": key}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tollgate/mongo: delete terms: %w", err)
	}
	return deleted > 0, nil
}

func (s *Store) GetTerms(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Terms, error) {
	var m termsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(owner) + ":" + vaultID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrTermsNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get terms: %w", err)
	}
	return fromTermsModel(&m), nil
}

func (s *Store) GetListing(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Listing, error) {
	var m listingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(owner) + ":" + vaultID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrListingNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get listing: %w", err)
	}
	return fromListingModel(&m), nil
}

func (s *Store) ListDetails(ctx context.Context, owner types.Principal) ([]*subscription.Detail, error) {
	var listings []listingModel
	err := s.mdb.NewFind(&listings).
		Filter(bson.M{"owner": string(owner)}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list listings: %w", err)
	}

	var terms []termsModel
	err = s.mdb.NewFind(&terms).
		Filter(bson.M{"owner": string(owner)}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list terms: %w", err)
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
	pipeline := bson.A{
		bson.M{"$match": bson.M{"owner": string(owner)}},
		bson.M{"$count": "total"},
	}

	cursor, err := s.mdb.Collection(colListings).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("tollgate/mongo: count listings: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("tollgate/mongo: count listings decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return int(results[0].Total), nil
}

// ==================== Grant Store ====================

func (s *Store) CreateGrant(ctx context.Context, g *entitlement.Grant) error {
	m := toGrantModel(g)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: create grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID uint64) (*entitlement.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(grantID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrGrantNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get grant: %w", err)
	}
	return fromGrantModel(&m), nil
}

func (s *Store) GrantsByHolder(ctx context.Context, holder types.Principal) ([]*entitlement.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"holder": string(holder)}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tollgate/mongo: grants by holder: %w", err)
	}

	result := make([]*entitlement.Grant, len(models))
	for i := range models {
		result[i] = fromGrantModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateGrantHolder(ctx context.Context, grantID uint64, holder types.Principal) error {
	t := now()
	res, err := s.mdb.NewUpdate((*grantModel)(nil)).
		Filter(bson.M{"_id": int64(grantID)}).
		Set("holder", string(holder)).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: update grant holder: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tollgate.ErrGrantNotFound
	}
	return nil
}

func (s *Store) MaxGrantID(ctx context.Context) (uint64, error) {
	pipeline := bson.A{
		bson.M{
			"$group": bson.M{
				"_id": nil,
				"max": bson.M{"$max": "$_id"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colGrants).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("tollgate/mongo: max grant id: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Max int64 `bson:"max"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("tollgate/mongo: max grant id decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return uint64(results[0].Max), nil
}

func (s *Store) GrantsExpiredBetween(ctx context.Context, from, to time.Time) ([]*entitlement.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"expires_at": bson.M{"$gt": from, "$lte": to}}).
		Sort(bson.D{{Key: "expires_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tollgate/mongo: grants expired between: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: create deal: %w", err)
	}
	return nil
}

func (s *Store) GetDeal(ctx context.Context, grantID uint64) (*entitlement.Deal, error) {
	var m dealModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(grantID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrDealNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get deal: %w", err)
	}
	return fromDealModel(&m), nil
}

// ==================== Balance Store ====================

func (s *Store) Balance(ctx context.Context, account types.Principal, currency string) (types.Money, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(account)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero(currency), nil
		}
		return types.Money{}, fmt.Errorf("tollgate/mongo: balance: %w", err)
	}
	return types.Money{Amount: m.AmountCents, Currency: currency}, nil
}

func (s *Store) AdjustBalance(ctx context.Context, account types.Principal, delta types.Money) error {
	if delta.Amount == 0 {
		return nil
	}
	t := now()

	if delta.Amount < 0 {
		// Guarded debit: the filter refuses any update that would take
		// the account negative, so no match means not enough funds.
		res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
			Filter(bson.M{
				"_id":          string(account),
				"amount_cents": bson.M{"$gte": -delta.Amount},
			}).
			SetUpdate(bson.M{
				"$inc": bson.M{"amount_cents": delta.Amount},
				"$set": bson.M{"updated_at": t},
			}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("tollgate/mongo: debit balance: %w", err)
		}
		if res.MatchedCount() == 0 {
			return tollgate.ErrInsufficientBalance
		}
		return nil
	}

	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": string(account)}).
		SetUpdate(bson.M{
			"$inc": bson.M{"amount_cents": delta.Amount},
			"$set": bson.M{"updated_at": t},
			"$setOnInsert": bson.M{
				"currency":   delta.Currency,
				"created_at": t,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: credit balance: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tollgate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colVaults: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colListings: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "vault_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTerms: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colGrants: {
			{Keys: bson.D{{Key: "holder", Value: 1}}},
			{Keys: bson.D{{Key: "holder", Value: 1}, {Key: "ref_owner", Value: 1}, {Key: "ref_vault_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colDeals: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colBalances: {},
	}
}
