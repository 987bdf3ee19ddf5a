package model

import "time"

// Bag sizes a farm can price. A nil entry in Farm.Prices means the size is
// not sold.
var BagSizes = []int{5, 10, 25, 30}

// Farm is a rice farm that offers weekly pickups.
//
// Fields:
//  OwnerID        – consumer identity of the farmer managing the farm.
//  PickupSlotCode – weekly slot such as WED_19_20, local time.
//  Prices         – per-bag price keyed by size in kg.
//  Accepting      – cleared to soft-retire the farm.
//  Publishable    – whether the profile appears in public listings.
type Farm struct {
	ID              string         // farms.id
	OwnerID         *string        // farms.owner_consumer_id (nullable)
	Name            string         // farms.name
	PickupLat       float64        // farms.pickup_lat
	PickupLng       float64        // farms.pickup_lng
	PickupPlaceName string         // farms.pickup_place_name
	PickupNotes     string         // farms.pickup_notes
	PickupSlotCode  string         // farms.pickup_slot_code
	Prices          map[int]*int64 // farms.price_5kg .. farms.price_30kg
	Accepting       bool           // farms.accepting
	Publishable     bool           // farms.publishable
	CreatedAt       time.Time      // farms.created_at
	UpdatedAt       time.Time      // farms.updated_at
}

// PriceFor returns the unit price for a bag size and whether it is sold.
func (f *Farm) PriceFor(sizeKg int) (int64, bool) {
	p, ok := f.Prices[sizeKg]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

// OwnedBy reports whether consumerID manages the farm.
func (f *Farm) OwnedBy(consumerID string) bool {
	return f.OwnerID != nil && consumerID != "" && *f.OwnerID == consumerID
}
