package donations

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/codemavricks/zerohunger/internal/cache"
	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/codemavricks/zerohunger/internal/services/geo"
	"github.com/pkg/errors"
)

const availableKey = cache.AvailableDonationsKey

const defaultNearbyRadiusKm = 10

type Repository interface {
	CreateDonation(ctx context.Context, donorID uint64, in models.DonationCreateInput) (*models.Donation, error)
	GetDonationByID(ctx context.Context, id uint64) (*models.Donation, error)
	ListAvailableDonations(ctx context.Context) ([]*models.Donation, error)
	ListDonationsByDonor(ctx context.Context, donorID uint64) ([]*models.Donation, error)
	UpdateDonation(ctx context.Context, id, donorID uint64, in models.DonationUpdateInput) (*models.Donation, error)
	DeleteDonation(ctx context.Context, id, donorID uint64) error
}

type Service struct {
	repo    Repository
	cache   cache.BytesCache
	listTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, listTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, listTTL: listTTL}
}

func (s *Service) Create(ctx context.Context, caller *models.User, in models.DonationCreateInput) (*models.Donation, error) {
	if !caller.HasRole(models.RoleDonor) {
		return nil, models.ErrForbidden
	}
	if in.Title == "" {
		return nil, errors.New("title is required")
	}
	if in.QuantityKg <= 0 {
		return nil, errors.New("quantityKg must be positive")
	}

	d, err := s.repo.CreateDonation(ctx, caller.ID, in)
	if err != nil {
		return nil, err
	}
	s.InvalidateAvailable(ctx)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Donation, error) {
	return s.repo.GetDonationByID(ctx, id)
}

// ListAvailable serves the open-donation listing through a best-effort
// cache; the cache is never authoritative and is dropped on any mutation.
func (s *Service) ListAvailable(ctx context.Context) ([]*models.Donation, error) {
	if s.cache != nil && s.listTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, availableKey); err == nil && ok {
			var out []*models.Donation
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := s.repo.ListAvailableDonations(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.listTTL > 0 {
		b, _ := json.Marshal(out)
		_ = s.cache.Set(ctx, availableKey, b, s.listTTL)
	}
	return out, nil
}

func (s *Service) ListMine(ctx context.Context, donorID uint64) ([]*models.Donation, error) {
	return s.repo.ListDonationsByDonor(ctx, donorID)
}

type NearbyDonation struct {
	*models.Donation
	DistanceKm float64 `json:"distance_km"`
}

// Nearby filters the available listing by haversine distance and sorts
// closest first. A spatial index is overkill at this scale.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]NearbyDonation, error) {
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRadiusKm
	}

	all, err := s.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyDonation, 0)
	for _, d := range all {
		dist := geo.Distance(lat, lng, d.Latitude, d.Longitude)
		if dist <= radiusKm {
			out = append(out, NearbyDonation{
				Donation:   d,
				DistanceKm: math.Round(dist*100) / 100,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func (s *Service) Update(ctx context.Context, id uint64, caller *models.User, in models.DonationUpdateInput) (*models.Donation, error) {
	d, err := s.repo.UpdateDonation(ctx, id, caller.ID, in)
	if err != nil {
		return nil, err
	}
	s.InvalidateAvailable(ctx)
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id uint64, caller *models.User) error {
	if err := s.repo.DeleteDonation(ctx, id, caller.ID); err != nil {
		return err
	}
	s.InvalidateAvailable(ctx)
	return nil
}

// InvalidateAvailable drops the cached listing. Also called when the
// worker reports expired donations over the broker.
func (s *Service) InvalidateAvailable(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, availableKey)
	}
}
