package core

import "time"

// StoreLimits is the per-store capacity applied by StorageCache quota
// enforcement (§4.7), scaled by a fid's purchased storage units.
type StoreLimits struct {
	Casts             uint
	Reactions         uint
	Links             uint
	Verifications     uint
	UserData          uint
	UsernameProofs    uint
}

// defaultLimits is the per-storage-unit allotment. A fid's effective limit
// for a store is defaultLimits.X * max(1, storageUnits).
var defaultLimits = StoreLimits{
	Casts:          2000,
	Reactions:      1000,
	Links:          2500,
	Verifications:  50,
	UserData:       50,
	UsernameProofs: 5,
}

// legacyLimitChangeDate is when defaultLimits last changed; fids whose
// storage was purchased before this date keep the legacy allotment below.
// The date is fixed here; pkg/config has no setting for it.
var legacyLimitChangeDate = time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)

var legacyLimits = StoreLimits{
	Casts:          5000,
	Reactions:      2500,
	Links:          2500,
	Verifications:  25,
	UserData:       50,
	UsernameProofs: 5,
}

// LimitsFor returns the effective per-store limits for a fid, scaled by its
// purchased storage units and selecting the legacy allotment if
// storagePurchasedAt precedes the limit-change date.
func LimitsFor(storageUnits uint32, storagePurchasedAt time.Time) StoreLimits {
	units := uint(storageUnits)
	if units == 0 {
		units = 1
	}
	base := defaultLimits
	if storagePurchasedAt.Before(legacyLimitChangeDate) {
		base = legacyLimits
	}
	return StoreLimits{
		Casts:          base.Casts * units,
		Reactions:      base.Reactions * units,
		Links:          base.Links * units,
		Verifications:  base.Verifications * units,
		UserData:       base.UserData * units,
		UsernameProofs: base.UsernameProofs * units,
	}
}
