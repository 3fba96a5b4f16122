package tollgate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/settlement"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

const (
	// DefaultLockPeriod is how long a freshly minted grant stays bound to
	// its original holder before TransferGrant will move it.
	DefaultLockPeriod = 24 * time.Hour

	// DefaultExpiryCheckInterval is how often the expiry watcher scans
	// for grants that crossed their expiration.
	DefaultExpiryCheckInterval = time.Minute

	// DefaultCurrency denominates all engine accounts unless overridden.
	DefaultCurrency = "usd"
)

// Gate is the entitlement and settlement engine.
type Gate struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	bank    settlement.Bank

	// mu serializes every mutating operation. The already-entitled check
	// and the settlement legs never interleave with another mutation.
	// Reads go straight to the store.
	mu sync.Mutex

	// grantSeq is the last issued grant id, seeded from the store on
	// Start. Guarded by mu.
	grantSeq uint64

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	platformFeeBps int64
	treasury       types.Principal
	lockPeriod     time.Duration
	currency       string
	clock          func() time.Time
	expiryInterval time.Duration
}

// New creates a new Gate instance.
func New(s store.Store, opts ...Option) *Gate {
	g := &Gate{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		stopChan:       make(chan struct{}),
		lockPeriod:     DefaultLockPeriod,
		currency:       DefaultCurrency,
		clock:          time.Now,
		expiryInterval: DefaultExpiryCheckInterval,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.bank == nil {
		g.bank = settlement.NewAccountBook(s, g.currency)
	}

	return g
}

// Option configures a Gate instance.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Gate) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPlatformFee sets the basis-point cut of every gross price routed to
// the platform treasury. Zero disables the platform leg.
func WithPlatformFee(bps int64) Option {
	return func(g *Gate) {
		g.platformFeeBps = bps
	}
}

// WithTreasury sets the account that receives the platform fee.
func WithTreasury(account types.Principal) Option {
	return func(g *Gate) {
		g.treasury = account
	}
}

// WithLockPeriod overrides the post-mint transfer lock window.
func WithLockPeriod(d time.Duration) Option {
	return func(g *Gate) {
		g.lockPeriod = d
	}
}

// WithCurrency sets the currency all engine accounts are denominated in.
func WithCurrency(code string) Option {
	return func(g *Gate) {
		g.currency = code
	}
}

// WithBank replaces the default store-backed account book, e.g. with a
// payment-provider bridge from a BankPlugin.
func WithBank(b settlement.Bank) Option {
	return func(g *Gate) {
		g.bank = b
	}
}

// WithClock injects the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

// WithExpiryCheckInterval sets how often the expiry watcher runs.
func WithExpiryCheckInterval(d time.Duration) Option {
	return func(g *Gate) {
		g.expiryInterval = d
	}
}

// Start migrates the store, seeds the grant counter, and begins
// background workers.
func (g *Gate) Start(ctx context.Context) error {
	// Migrate database
	if err := g.store.Migrate(ctx); err != nil {
		return err
	}

	// Seed the grant counter past anything already persisted.
	maxID, err := g.store.MaxGrantID(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	if maxID > g.grantSeq {
		g.grantSeq = maxID
	}
	g.mu.Unlock()

	// Initialize plugins
	g.plugins.EmitInit(ctx, g)

	// Start expiry watcher. The baseline is taken here, before the
	// goroutine runs, so grants minted after Start returns always fall
	// inside a sweep window.
	g.wg.Add(1)
	go g.expiryWatcher(ctx, g.clock())

	g.logger.Info("tollgate started",
		"platform_fee_bps", g.platformFeeBps,
		"lock_period", g.lockPeriod,
		"expiry_interval", g.expiryInterval,
	)

	return nil
}

// Stop shuts down the Gate.
func (g *Gate) Stop() error {
	close(g.stopChan)
	g.wg.Wait()

	ctx := context.Background()
	g.plugins.EmitShutdown(ctx)

	return g.store.Close()
}

// ──────────────────────────────────────────────────
// Vault Registry
// ──────────────────────────────────────────────────

// RegisterVault permanently binds a vault identifier to its owner. There
// is no deletion and no ownership transfer.
func (g *Gate) RegisterVault(ctx context.Context, vaultID string, owner types.Principal) error {
	if vaultID == "" {
		return ErrEmptyIdentifier
	}
	if owner.IsZero() {
		return ErrZeroPrincipal
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	v := &vault.Vault{
		Entity: types.NewEntity(),
		ID:     vaultID,
		Owner:  owner,
	}
	if err := g.store.CreateVault(ctx, v); err != nil {
		return err
	}

	g.plugins.EmitVaultRegistered(ctx, vaultID, string(owner))
	return nil
}

// VaultOwner returns the owner of a vault, or the zero principal when the
// vault was never registered.
func (g *Gate) VaultOwner(ctx context.Context, vaultID string) (types.Principal, error) {
	v, err := g.store.GetVault(ctx, vaultID)
	if err != nil {
		if errors.Is(err, ErrVaultNotFound) {
			return "", nil
		}
		return "", err
	}
	return v.Owner, nil
}

// ──────────────────────────────────────────────────
// Subscription Catalog
// ──────────────────────────────────────────────────

// SetSubscription upserts the caller's listing and access terms for a
// vault. A first call inserts, repeat calls overwrite the terms in place;
// both emit (created vs updated). An empty imageURL falls back to
// subscription.DefaultImageURL.
func (g *Gate) SetSubscription(ctx context.Context, caller types.Principal, vaultID string, price types.Money, duration time.Duration, imageURL string, coOwner types.Principal, splitFeeBps int64) error {
	if vaultID == "" {
		return ErrEmptyIdentifier
	}
	if caller.IsZero() {
		return ErrZeroPrincipal
	}

	owner, err := g.VaultOwner(ctx, vaultID)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotVaultOwner
	}
	if splitFeeBps < 0 || splitFeeBps > 10000 {
		return ErrInvalidFee
	}
	if !coOwner.IsZero() && coOwner == caller {
		return ErrSameCoOwner
	}
	if price.IsNegative() {
		return ErrInvalidAmount
	}
	// All settlement accounts are denominated in the engine currency;
	// reject mismatched terms here rather than at purchase time.
	if price.Currency != g.currency {
		return ErrInvalidAmount
	}

	if imageURL == "" {
		imageURL = subscription.DefaultImageURL
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// An existing terms row decides created vs updated.
	prev, err := g.store.GetTerms(ctx, caller, vaultID)
	if err != nil && !errors.Is(err, ErrTermsNotFound) {
		return err
	}

	listing := &subscription.Listing{
		Entity:   types.NewEntity(),
		Owner:    caller,
		VaultID:  vaultID,
		ImageURL: imageURL,
	}
	terms := &subscription.Terms{
		Entity:      types.NewEntity(),
		Owner:       caller,
		VaultID:     vaultID,
		Price:       price,
		Duration:    duration,
		CoOwner:     coOwner,
		SplitFeeBps: splitFeeBps,
	}

	if err := g.store.SetSubscription(ctx, listing, terms); err != nil {
		return err
	}

	if prev != nil {
		g.plugins.EmitSubscriptionUpdated(ctx, string(caller), vaultID, prev, terms)
	} else {
		g.plugins.EmitSubscriptionCreated(ctx, string(caller), vaultID, terms)
	}
	return nil
}

// DeleteSubscription removes the caller's listing and terms for a vault.
// Deleting a vault the caller never listed is a silent no-op.
func (g *Gate) DeleteSubscription(ctx context.Context, caller types.Principal, vaultID string) error {
	if vaultID == "" {
		return ErrEmptyIdentifier
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	removed, err := g.store.DeleteSubscription(ctx, caller, vaultID)
	if err != nil {
		return err
	}
	if removed {
		g.plugins.EmitSubscriptionDeleted(ctx, string(caller), vaultID)
	}
	return nil
}

// ListSubscriptions returns the owner's catalog joined with its terms,
// read at call time so it never lags a terms update.
func (g *Gate) ListSubscriptions(ctx context.Context, owner types.Principal) ([]*subscription.Detail, error) {
	if owner.IsZero() {
		return nil, ErrZeroPrincipal
	}
	return g.store.ListDetails(ctx, owner)
}

// ──────────────────────────────────────────────────
// Purchase & Settlement
// ──────────────────────────────────────────────────

// Purchase settles a payment against the vault's terms and mints a grant
// for the receiver. The caller pays; the receiver holds. Settlement runs
// every leg through the escrow account, so an aborted purchase never
// leaves funds with a payee, and a purchase either fully completes (all
// legs, grant, deal, hook) or fails with nothing granted.
func (g *Gate) Purchase(ctx context.Context, caller, vaultOwner types.Principal, vaultID string, receiver types.Principal, paid types.Money) (*entitlement.Grant, *settlement.Receipt, error) {
	if vaultOwner.IsZero() || receiver.IsZero() || caller.IsZero() {
		return nil, nil, ErrZeroPrincipal
	}
	if vaultID == "" {
		return nil, nil, ErrEmptyIdentifier
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ref := entitlement.Ref{Owner: vaultOwner, VaultID: vaultID}
	now := g.clock()

	held, err := g.holdsValidGrant(ctx, receiver, ref, now)
	if err != nil {
		return nil, nil, err
	}
	if held {
		return nil, nil, ErrAlreadyEntitled
	}

	terms, err := g.store.GetTerms(ctx, vaultOwner, vaultID)
	if err != nil {
		return nil, nil, err
	}

	if paid.LessThan(terms.Price) {
		return nil, nil, &InsufficientFundsError{Required: terms.Price, Paid: paid}
	}
	if g.platformFeeBps > 0 && g.treasury.IsZero() {
		return nil, nil, ErrTreasuryNotConfigured
	}

	// Refuse before moving anything when the caller cannot cover the
	// payment; a mid-sequence failure would strand funds in escrow.
	balance, err := g.bank.Balance(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	if balance.LessThan(paid) {
		return nil, nil, ErrInsufficientBalance
	}

	coSplit := int64(0)
	if terms.HasCoSplit() {
		coSplit = terms.SplitFeeBps
	}
	split := settlement.ComputeSplit(paid, terms.Price, g.platformFeeBps, coSplit)

	legs, err := g.settle(ctx, caller, vaultOwner, terms.CoOwner, paid, split)
	if err != nil {
		return nil, nil, err
	}

	grantID := g.grantSeq + 1
	grant := &entitlement.Grant{
		Entity:    types.NewEntity(),
		ID:        grantID,
		Holder:    receiver,
		Ref:       ref,
		ExpiresAt: now.Add(terms.Duration),
		MintedAt:  now,
	}
	if err := g.store.CreateGrant(ctx, grant); err != nil {
		// Funds have already moved; nothing here can roll them back.
		g.logger.Error("grant mint failed after settlement",
			"grant_id", grantID,
			"vault_id", vaultID,
			"error", err,
		)
		return nil, nil, err
	}
	g.grantSeq = grantID

	imageURL := subscription.DefaultImageURL
	if listing, err := g.store.GetListing(ctx, vaultOwner, vaultID); err == nil {
		imageURL = listing.ImageURL
	}
	deal := &entitlement.Deal{
		Entity:   types.NewEntity(),
		GrantID:  grantID,
		Owner:    vaultOwner,
		ImageURL: imageURL,
		Price:    terms.Price,
	}
	if err := g.store.CreateDeal(ctx, deal); err != nil {
		g.logger.Error("deal record failed after mint",
			"grant_id", grantID,
			"error", err,
		)
		return nil, nil, err
	}

	receipt := &settlement.Receipt{
		ID:      id.NewReceiptID(),
		GrantID: grantID,
		Paid:    paid,
		Legs:    legs,
	}

	g.plugins.EmitAccessGranted(ctx, grant, receipt)

	g.logger.Debug("purchase settled",
		"grant_id", grantID,
		"vault_id", vaultID,
		"holder", receiver,
		"price", terms.Price,
	)

	return grant, receipt, nil
}

// settle executes the transfer legs of a purchase in order: payment into
// escrow, then platform fee, co-owner cut, owner take, and refund out of
// it. Zero legs are skipped. A failed leg aborts with *SettlementError;
// funds stranded by an abort sit in escrow, never with a payee.
func (g *Gate) settle(ctx context.Context, caller, vaultOwner, coOwner types.Principal, paid types.Money, split settlement.Split) ([]settlement.Leg, error) {
	sequence := []settlement.Leg{
		{Kind: settlement.LegEscrow, From: caller, To: settlement.EscrowAccount, Amount: paid},
		{Kind: settlement.LegPlatformFee, From: settlement.EscrowAccount, To: g.treasury, Amount: split.PlatformCut},
		{Kind: settlement.LegCoOwnerCut, From: settlement.EscrowAccount, To: coOwner, Amount: split.CoOwnerCut},
		{Kind: settlement.LegOwnerTake, From: settlement.EscrowAccount, To: vaultOwner, Amount: split.OwnerTake},
		{Kind: settlement.LegRefund, From: settlement.EscrowAccount, To: caller, Amount: split.Refund},
	}

	legs := make([]settlement.Leg, 0, len(sequence))
	for _, leg := range sequence {
		if !leg.Amount.IsPositive() {
			continue
		}
		if err := g.bank.Transfer(ctx, leg.From, leg.To, leg.Amount); err != nil {
			return nil, &SettlementError{Leg: leg.Kind, From: leg.From, To: leg.To, Amount: leg.Amount, Err: err}
		}
		legs = append(legs, leg)
	}

	return legs, nil
}

// GrantInfo returns a grant by id, for metadata rendering.
func (g *Gate) GrantInfo(ctx context.Context, grantID uint64) (*entitlement.Grant, error) {
	return g.store.GetGrant(ctx, grantID)
}

// DealInfo returns the settlement record written alongside a grant.
func (g *Gate) DealInfo(ctx context.Context, grantID uint64) (*entitlement.Deal, error) {
	return g.store.GetDeal(ctx, grantID)
}

// ──────────────────────────────────────────────────
// Access Verification
// ──────────────────────────────────────────────────

// HasAccess reports whether consumer currently holds a valid grant for
// the vault. The expiry boundary is inclusive: access holds through the
// exact expiration instant.
func (g *Gate) HasAccess(ctx context.Context, owner types.Principal, vaultID string, consumer types.Principal) (*entitlement.Result, error) {
	if _, err := g.store.GetTerms(ctx, owner, vaultID); err != nil {
		if errors.Is(err, ErrTermsNotFound) {
			return &entitlement.Result{Granted: false, Reason: entitlement.ReasonNoSuchTerms}, nil
		}
		return nil, err
	}

	grants, err := g.store.GrantsByHolder(ctx, consumer)
	if err != nil {
		return nil, err
	}

	ref := entitlement.Ref{Owner: owner, VaultID: vaultID}
	now := g.clock()

	held := false
	for _, grant := range grants {
		if grant.Ref != ref {
			continue
		}
		if grant.ValidAt(now) {
			return &entitlement.Result{
				Granted:   true,
				Reason:    entitlement.ReasonGranted,
				ExpiresAt: grant.ExpiresAt,
			}, nil
		}
		held = true
	}

	if held {
		return &entitlement.Result{Granted: false, Reason: entitlement.ReasonAccessExpired}, nil
	}
	return &entitlement.Result{Granted: false, Reason: entitlement.ReasonNotHeld}, nil
}

// HasAnyAccess reports whether consumer holds a valid grant for any vault
// the owner currently lists. A zero principal on either side is false,
// not an error. Cost is listings times the consumer's grant count; both
// stay small per principal.
func (g *Gate) HasAnyAccess(ctx context.Context, owner, consumer types.Principal) (bool, error) {
	if owner.IsZero() || consumer.IsZero() {
		return false, nil
	}

	details, err := g.store.ListDetails(ctx, owner)
	if err != nil {
		return false, err
	}

	for _, d := range details {
		result, err := g.HasAccess(ctx, owner, d.VaultID, consumer)
		if err != nil {
			return false, err
		}
		if result.Granted {
			return true, nil
		}
	}

	return false, nil
}

// ──────────────────────────────────────────────────
// Grant Transfer
// ──────────────────────────────────────────────────

// TransferGrant moves a grant to a new holder. Transfers are rejected
// inside the post-mint lock window and whenever the target already holds
// a valid grant for the same vault. Expiration and mint time never
// change.
func (g *Gate) TransferGrant(ctx context.Context, caller types.Principal, grantID uint64, to types.Principal) error {
	if to.IsZero() {
		return ErrZeroPrincipal
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	grant, err := g.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if grant.Holder != caller {
		return ErrNotGrantHolder
	}

	now := g.clock()
	unlocksAt := grant.MintedAt.Add(g.lockPeriod)
	if now.Before(unlocksAt) {
		return &TransferLockedError{GrantID: grantID, UnlocksAt: unlocksAt}
	}

	// A transferred grant must not hand the target a second live grant
	// for the same vault. Expired grants move freely.
	if grant.ValidAt(now) {
		others, err := g.store.GrantsByHolder(ctx, to)
		if err != nil {
			return err
		}
		for _, other := range others {
			if other.ID == grantID {
				continue
			}
			if other.Ref == grant.Ref && other.ValidAt(now) {
				return ErrAlreadyEntitled
			}
		}
	}

	if err := g.store.UpdateGrantHolder(ctx, grantID, to); err != nil {
		return err
	}

	g.plugins.EmitGrantTransferred(ctx, grantID, string(caller), string(to))
	return nil
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// Deposit credits an account from outside the engine. This is how buyers
// fund the balance a Purchase debits.
func (g *Gate) Deposit(ctx context.Context, account types.Principal, amount types.Money) error {
	if account.IsZero() {
		return ErrZeroPrincipal
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bank.Deposit(ctx, account, amount)
}

// BalanceOf returns the account's current balance. Accounts never seen
// report zero in the engine currency.
func (g *Gate) BalanceOf(ctx context.Context, account types.Principal) (types.Money, error) {
	return g.bank.Balance(ctx, account)
}

// ──────────────────────────────────────────────────
// Expiry Watcher
// ──────────────────────────────────────────────────

// expiryWatcher periodically reports grants that crossed their
// expiration. Expired grants stay in the store; the watcher only
// notifies.
func (g *Gate) expiryWatcher(ctx context.Context, lastCheck time.Time) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return

		case <-ticker.C:
			now := g.clock()
			g.sweepExpired(ctx, lastCheck, now)
			lastCheck = now
		}
	}
}

func (g *Gate) sweepExpired(ctx context.Context, from, to time.Time) {
	grants, err := g.store.GrantsExpiredBetween(ctx, from, to)
	if err != nil {
		g.logger.Error("expiry sweep failed", "error", err)
		return
	}

	for _, grant := range grants {
		g.plugins.EmitGrantExpired(ctx, grant)
	}

	if len(grants) > 0 {
		g.logger.Debug("grants expired",
			"count", len(grants),
			"window_start", from,
			"window_end", to,
		)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// holdsValidGrant reports whether holder has a non-expired grant for ref.
func (g *Gate) holdsValidGrant(ctx context.Context, holder types.Principal, ref entitlement.Ref, now time.Time) (bool, error) {
	grants, err := g.store.GrantsByHolder(ctx, holder)
	if err != nil {
		return false, err
	}
	for _, grant := range grants {
		if grant.Ref == ref && grant.ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}
