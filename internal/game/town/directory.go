package town

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/town/internal/video"
)

// DirectoryConfig configures a Directory.
type DirectoryConfig struct {
	// Capacity is the maximum number of players in each town created.
	Capacity int
	// PasswordCost is the bcrypt cost for update passwords; zero means bcrypt.DefaultCost.
	PasswordCost int
}

// Listing is one row of the public town list.
type Listing struct {
	TownID       string `json:"townID"`
	FriendlyName string `json:"friendlyName"`
	Occupancy    int    `json:"currentOccupancy"`
	Capacity     int    `json:"maximumOccupancy"`
}

// Directory owns the live towns of one server process.
type Directory struct {
	cfg      DirectoryConfig
	provider video.Provider
	logger   *zap.Logger

	mu    sync.RWMutex
	towns map[string]*Town
}

// NewDirectory creates an empty directory.
//
// Precondition: cfg.Capacity >= 1; provider and logger non-nil.
func NewDirectory(cfg DirectoryConfig, provider video.Provider, logger *zap.Logger) *Directory {
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	return &Directory{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		towns:    make(map[string]*Town),
	}
}

// Create starts a new town.
//
// Precondition: friendlyName must be non-empty.
// Postcondition: Returns the town and its plaintext update password, which is
// not retrievable afterwards.
func (d *Directory) Create(friendlyName string, public bool) (*Town, string, error) {
	password, err := newPassword()
	if err != nil {
		return nil, "", err
	}
	t, err := d.create(friendlyName, public, password)
	if err != nil {
		return nil, "", err
	}
	return t, password, nil
}

func (d *Directory) create(friendlyName string, public bool, password string) (*Town, error) {
	if strings.TrimSpace(friendlyName) == "" {
		return nil, fmt.Errorf("town %w", ErrEmptyName)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cfg.PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("hashing update password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.newIDLocked()
	t := newTown(id, friendlyName, public, hash, d.cfg.Capacity, d.provider, d.logger)
	d.towns[id] = t
	d.logger.Info("town created",
		zap.String("town_id", id),
		zap.String("friendly_name", friendlyName),
		zap.Bool("public", public),
	)
	return t, nil
}

// Get returns the town with the given id.
func (d *Directory) Get(id string) (*Town, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.towns[id]
	return t, ok
}

// Len returns the number of live towns.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.towns)
}

// ListPublic returns the publicly listed towns ordered by friendly name, then id.
func (d *Directory) ListPublic() []Listing {
	d.mu.RLock()
	towns := make([]*Town, 0, len(d.towns))
	for _, t := range d.towns {
		towns = append(towns, t)
	}
	d.mu.RUnlock()

	out := make([]Listing, 0, len(towns))
	for _, t := range towns {
		if !t.IsPubliclyListed() {
			continue
		}
		out = append(out, Listing{
			TownID:       t.ID(),
			FriendlyName: t.FriendlyName(),
			Occupancy:    t.Occupancy(),
			Capacity:     t.Capacity(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FriendlyName != out[j].FriendlyName {
			return out[i].FriendlyName < out[j].FriendlyName
		}
		return out[i].TownID < out[j].TownID
	})
	return out
}

// Update changes a town's friendly name and/or listing. Nil fields are left unchanged.
//
// Postcondition: Returns ErrTownNotFound, ErrInvalidPassword, or ErrEmptyName
// with no change applied; nil on success.
func (d *Directory) Update(id, password string, friendlyName *string, public *bool) error {
	t, err := d.authorize(id, password)
	if err != nil {
		return err
	}
	if friendlyName != nil && strings.TrimSpace(*friendlyName) == "" {
		return fmt.Errorf("town %w", ErrEmptyName)
	}
	t.setMetadata(friendlyName, public)
	d.logger.Info("town updated", zap.String("town_id", id))
	return nil
}

// Delete disconnects every player of the town and removes it.
//
// Postcondition: Returns ErrTownNotFound or ErrInvalidPassword with no change applied.
func (d *Directory) Delete(id, password string) error {
	t, err := d.authorize(id, password)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.towns[id] != t {
		d.mu.Unlock()
		return ErrTownNotFound
	}
	delete(d.towns, id)
	d.mu.Unlock()

	t.DisconnectAllPlayers()
	d.logger.Info("town deleted", zap.String("town_id", id))
	return nil
}

// CloseAll disconnects every town and empties the directory.
func (d *Directory) CloseAll() {
	d.mu.Lock()
	towns := d.towns
	d.towns = make(map[string]*Town)
	d.mu.Unlock()

	for _, t := range towns {
		t.DisconnectAllPlayers()
	}
	d.logger.Info("all towns closed", zap.Int("towns", len(towns)))
}

func (d *Directory) authorize(id, password string) (*Town, error) {
	t, ok := d.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	if bcrypt.CompareHashAndPassword(t.passwordHash, []byte(password)) != nil {
		return nil, ErrInvalidPassword
	}
	return t, nil
}

// newIDLocked returns a short id not yet in use.
func (d *Directory) newIDLocked() string {
	for {
		id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		if _, taken := d.towns[id]; !taken {
			return id
		}
	}
}

func newPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating update password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
