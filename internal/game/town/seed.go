package town

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/town/internal/game/world"
)

// yamlSeedFile is the top-level YAML structure for a town seed file.
type yamlSeedFile struct {
	Towns []yamlTown `yaml:"towns"`
}

// yamlTown is the YAML representation of a seeded town.
type yamlTown struct {
	FriendlyName      string     `yaml:"friendly_name"`
	Public            bool       `yaml:"public"`
	UpdatePassword    string     `yaml:"update_password"`
	ConversationAreas []yamlArea `yaml:"conversation_areas"`
}

// yamlArea is the YAML representation of a conversation area.
type yamlArea struct {
	Label string            `yaml:"label"`
	Topic string            `yaml:"topic"`
	Box   world.BoundingBox `yaml:"box"`
}

// SeedTown describes a town to create at startup.
type SeedTown struct {
	FriendlyName string
	Public       bool
	// UpdatePassword is used as the town's update password; empty generates one.
	UpdatePassword string
	Areas          []world.ConversationArea
}

// Seeded reports a town created from a seed.
type Seeded struct {
	Town *Town
	// Password is set only when it was generated.
	Password string
}

// LoadSeedFile reads a YAML town seed file.
//
// Precondition: path must point to a YAML seed file.
// Postcondition: Returns the seeds in file order or a non-nil error.
func LoadSeedFile(path string) ([]SeedTown, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return LoadSeedBytes(data)
}

// LoadSeedBytes parses town seeds from YAML bytes.
//
// Postcondition: Every returned seed has a non-empty name and structurally valid areas.
func LoadSeedBytes(data []byte) ([]SeedTown, error) {
	var file yamlSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}

	seeds := make([]SeedTown, 0, len(file.Towns))
	for i, yt := range file.Towns {
		if yt.FriendlyName == "" {
			return nil, fmt.Errorf("seed town %d: %w", i, ErrEmptyName)
		}
		seed := SeedTown{
			FriendlyName:   yt.FriendlyName,
			Public:         yt.Public,
			UpdatePassword: yt.UpdatePassword,
		}
		for _, ya := range yt.ConversationAreas {
			a := world.ConversationArea{Label: ya.Label, Topic: ya.Topic, Box: ya.Box}
			if err := a.Validate(); err != nil {
				return nil, fmt.Errorf("seed town %q area %q: %w", yt.FriendlyName, ya.Label, err)
			}
			seed.Areas = append(seed.Areas, a)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// Seed creates each seeded town with its areas.
//
// Postcondition: Returns the created towns in seed order, or the first error;
// towns created before the error remain in the directory.
func (d *Directory) Seed(seeds []SeedTown) ([]Seeded, error) {
	out := make([]Seeded, 0, len(seeds))
	for _, s := range seeds {
		password, generated := s.UpdatePassword, false
		if password == "" {
			p, err := newPassword()
			if err != nil {
				return out, err
			}
			password, generated = p, true
		}
		t, err := d.create(s.FriendlyName, s.Public, password)
		if err != nil {
			return out, err
		}
		for _, a := range s.Areas {
			if _, err := t.AddConversationArea(a); err != nil {
				return out, fmt.Errorf("seeding town %q area %q: %w", s.FriendlyName, a.Label, err)
			}
		}
		seeded := Seeded{Town: t}
		if generated {
			seeded.Password = password
		}
		out = append(out, seeded)
	}
	return out, nil
}
