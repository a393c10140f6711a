// Package matching surfaces open blood requests to donors and donors to
// recipients. Compatibility is exact blood-group equality plus locality.
package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/store"
)

type Finder struct {
	requests *store.BloodRequestStore
	donors   *store.DonorStore
	now      func() time.Time
}

type Option func(*Finder)

func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

func NewFinder(requests *store.BloodRequestStore, donors *store.DonorStore, opts ...Option) *Finder {
	f := &Finder{requests: requests, donors: donors, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindCompatibleRequests returns the active requests in the donor's thana that
// need the donor's blood group and that the donor has not answered, most
// urgent first and newest first within an urgency.
func (f *Finder) FindCompatibleRequests(ctx context.Context, donor *model.Donor) ([]model.BloodRequest, error) {
	if donor == nil {
		return nil, apperr.Invalid("donor", "required")
	}
	reqs, err := f.requests.ListCompatibleForDonor(ctx, donor.BloodGroup, donor.Thana, donor.ID, f.now())
	if err != nil {
		return nil, fmt.Errorf("find compatible requests: %w", err)
	}
	if reqs == nil {
		reqs = []model.BloodRequest{}
	}
	return reqs, nil
}

// FindCompatibleDonors returns active, available donors matching c, most
// recently registered first. No match is an empty slice.
func (f *Finder) FindCompatibleDonors(ctx context.Context, c model.DonorCriteria) ([]model.Donor, error) {
	if !c.BloodGroup.Valid() {
		return nil, apperr.Invalid("blood_group", fmt.Sprintf("unknown blood group %q", c.BloodGroup))
	}
	c.Thana = strings.TrimSpace(c.Thana)
	c.PostOffice = strings.TrimSpace(c.PostOffice)
	c.District = strings.TrimSpace(c.District)

	donors, err := f.donors.ListCompatible(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("find compatible donors: %w", err)
	}
	if donors == nil {
		donors = []model.Donor{}
	}
	return donors, nil
}
