package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	ItemKindTrack ItemKind = "track"
	ItemKindAlbum ItemKind = "album"
)

func ParseItemKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case ItemKindTrack, ItemKindAlbum:
		return ItemKind(s), nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

type ItemRef struct {
	Kind ItemKind
	ID   int64
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

func TrackRef(id int64) ItemRef { return ItemRef{Kind: ItemKindTrack, ID: id} }
func AlbumRef(id int64) ItemRef { return ItemRef{Kind: ItemKindAlbum, ID: id} }

// Item is the part shared by tracks and albums that the purchase flow needs.
type Item struct {
	ID        int64
	Title     string
	Author    string
	Price     *decimal.Decimal
	CreatedAt time.Time
}

// Purchasable reports whether the item has a price that can be charged.
func (i Item) Purchasable() bool {
	return i.Price != nil && !i.Price.IsNegative()
}

const freeVersionLength = 25

type Track struct {
	Item
	AlbumID     *int64
	FullVersion string
	FreeVersion string
}

// FreePreview returns the first runes of the full version shown to non-owners.
func FreePreview(full string) string {
	runes := []rune(full)
	if len(runes) <= freeVersionLength {
		return full
	}
	return string(runes[:freeVersionLength])
}

type Album struct {
	Item
	Image    string
	TrackIDs []int64
}

// Purchasable is what tracks and albums share in the purchase flow.
type Purchasable interface {
	Ref() ItemRef
	Details() Item
	// UnlockedContent is handed to the buyer after a purchase, or nil.
	UnlockedContent() *string
	// CoveredBy names the item whose ownership already grants this one, or nil.
	CoveredBy() *ItemRef
}

func (t *Track) Ref() ItemRef  { return TrackRef(t.ID) }
func (t *Track) Details() Item { return t.Item }

func (t *Track) UnlockedContent() *string {
	content := t.FullVersion
	return &content
}

func (t *Track) CoveredBy() *ItemRef {
	if t.AlbumID == nil {
		return nil
	}
	album := AlbumRef(*t.AlbumID)
	return &album
}

func (a *Album) Ref() ItemRef             { return AlbumRef(a.ID) }
func (a *Album) Details() Item            { return a.Item }
func (a *Album) UnlockedContent() *string { return nil }
func (a *Album) CoveredBy() *ItemRef      { return nil }

// PurchaseResult is what a successful Buy hands back to the caller.
type PurchaseResult struct {
	Balance  decimal.Decimal
	Item     ItemRef
	EntryID  string
	Content  *string
	ChargeID string
}
