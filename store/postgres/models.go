package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

// ==================== Vault models ====================

type vaultModel struct {
	grove.BaseModel `grove:"table:tollgate_vaults"`

	ID        string    `grove:"id,pk"`
	Owner     string    `grove:"owner"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toVaultModel(v *vault.Vault) *vaultModel {
	return &vaultModel{
		ID:        v.ID,
		Owner:     string(v.Owner),
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func fromVaultModel(m *vaultModel) *vault.Vault {
	return &vault.Vault{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:    m.ID,
		Owner: types.Principal(m.Owner),
	}
}

// ==================== Listing models ====================

type listingModel struct {
	grove.BaseModel `grove:"table:tollgate_listings"`

	Owner     string    `grove:"owner,pk"`
	VaultID   string    `grove:"vault_id,pk"`
	ImageURL  string    `grove:"image_url"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toListingModel(l *subscription.Listing) *listingModel {
	return &listingModel{
		Owner:     string(l.Owner),
		VaultID:   l.VaultID,
		ImageURL:  l.ImageURL,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func fromListingModel(m *listingModel) *subscription.Listing {
	return &subscription.Listing{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Owner:    types.Principal(m.Owner),
		VaultID:  m.VaultID,
		ImageURL: m.ImageURL,
	}
}

// ==================== Terms models ====================

type termsModel struct {
	grove.BaseModel `grove:"table:tollgate_terms"`

	Owner            string    `grove:"owner,pk"`
	VaultID          string    `grove:"vault_id,pk"`
	PriceAmountCents int64     `grove:"price_amount_cents"`
	PriceCurrency    string    `grove:"price_currency"`
	DurationNs       int64     `grove:"duration_ns"`
	CoOwner          string    `grove:"co_owner"`
	SplitFeeBps      int64     `grove:"split_fee_bps"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toTermsModel(t *subscription.Terms) *termsModel {
	return &termsModel{
		Owner:            string(t.Owner),
		VaultID:          t.VaultID,
		PriceAmountCents: t.Price.Amount,
		PriceCurrency:    t.Price.Currency,
		DurationNs:       int64(t.Duration),
		CoOwner:          string(t.CoOwner),
		SplitFeeBps:      t.SplitFeeBps,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func fromTermsModel(m *termsModel) *subscription.Terms {
	return &subscription.Terms{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Owner:       types.Principal(m.Owner),
		VaultID:     m.VaultID,
		Price:       types.Money{Amount: m.PriceAmountCents, Currency: m.PriceCurrency},
		Duration:    time.Duration(m.DurationNs),
		CoOwner:     types.Principal(m.CoOwner),
		SplitFeeBps: m.SplitFeeBps,
	}
}

// ==================== Grant models ====================

// Grant ids are unsigned in the domain but stored as BIGINT; they come from
// a small monotonic counter, so the conversion never overflows in practice.
type grantModel struct {
	grove.BaseModel `grove:"table:tollgate_grants"`

	ID         int64     `grove:"id,pk"`
	Holder     string    `grove:"holder"`
	RefOwner   string    `grove:"ref_owner"`
	RefVaultID string    `grove:"ref_vault_id"`
	ExpiresAt  time.Time `grove:"expires_at"`
	MintedAt   time.Time `grove:"minted_at"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toGrantModel(g *entitlement.Grant) *grantModel {
	return &grantModel{
		ID:         int64(g.ID),
		Holder:     string(g.Holder),
		RefOwner:   string(g.Ref.Owner),
		RefVaultID: g.Ref.VaultID,
		ExpiresAt:  g.ExpiresAt,
		MintedAt:   g.MintedAt,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
	}
}

func fromGrantModel(m *grantModel) *entitlement.Grant {
	return &entitlement.Grant{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:     uint64(m.ID),
		Holder: types.Principal(m.Holder),
		Ref: entitlement.Ref{
			Owner:   types.Principal(m.RefOwner),
			VaultID: m.RefVaultID,
		},
		ExpiresAt: m.ExpiresAt,
		MintedAt:  m.MintedAt,
	}
}

// ==================== Deal models ====================

type dealModel struct {
	grove.BaseModel `grove:"table:tollgate_deals"`

	GrantID          int64     `grove:"grant_id,pk"`
	Owner            string    `grove:"owner"`
	ImageURL         string    `grove:"image_url"`
	PriceAmountCents int64     `grove:"price_amount_cents"`
	PriceCurrency    string    `grove:"price_currency"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toDealModel(d *entitlement.Deal) *dealModel {
	return &dealModel{
		GrantID:          int64(d.GrantID),
		Owner:            string(d.Owner),
		ImageURL:         d.ImageURL,
		PriceAmountCents: d.Price.Amount,
		PriceCurrency:    d.Price.Currency,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromDealModel(m *dealModel) *entitlement.Deal {
	return &entitlement.Deal{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		GrantID:  uint64(m.GrantID),
		Owner:    types.Principal(m.Owner),
		ImageURL: m.ImageURL,
		Price:    types.Money{Amount: m.PriceAmountCents, Currency: m.PriceCurrency},
	}
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:tollgate_balances"`

	Account     string    `grove:"account,pk"`
	AmountCents int64     `grove:"amount_cents"`
	Currency    string    `grove:"currency"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}
