package activities

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedActivity describes an activity created on first start.
type SeedActivity struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Schedule        string   `yaml:"schedule"`
	MaxParticipants int      `yaml:"max_participants"`
	Participants    []string `yaml:"participants,omitempty"`
}

type seedFile struct {
	Activities []SeedActivity `yaml:"activities"`
}

// DefaultSeed is the catalogue used when no seed file is configured.
var DefaultSeed = []SeedActivity{
	{Name: "Chess Club", Description: "Learn strategies and compete in chess tournaments", Schedule: "Fridays, 3:30 PM - 5:00 PM", MaxParticipants: 12,
		Participants: []string{"michael@mergington.edu", "daniel@mergington.edu"}},
	{Name: "Programming Class", Description: "Learn programming fundamentals and build software projects", Schedule: "Tuesdays and Thursdays, 3:30 PM - 4:30 PM", MaxParticipants: 20,
		Participants: []string{"emma@mergington.edu", "sophia@mergington.edu"}},
	{Name: "Gym Class", Description: "Physical education and sports activities", Schedule: "Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM", MaxParticipants: 30,
		Participants: []string{"john@mergington.edu", "olivia@mergington.edu"}},
	{Name: "Soccer Team", Description: "Join the school soccer team and compete in matches", Schedule: "Tuesdays and Thursdays, 4:00 PM - 5:30 PM", MaxParticipants: 22,
		Participants: []string{"liam@mergington.edu", "noah@mergington.edu"}},
	{Name: "Basketball Team", Description: "Practice and play basketball with the school team", Schedule: "Wednesdays and Fridays, 3:30 PM - 5:00 PM", MaxParticipants: 15,
		Participants: []string{"ava@mergington.edu", "mia@mergington.edu"}},
	{Name: "Art Club", Description: "Explore your creativity through painting and drawing", Schedule: "Thursdays, 3:30 PM - 5:00 PM", MaxParticipants: 15,
		Participants: []string{"amelia@mergington.edu", "harper@mergington.edu"}},
	{Name: "Drama Club", Description: "Act, direct, and produce plays and performances", Schedule: "Mondays and Wednesdays, 4:00 PM - 5:30 PM", MaxParticipants: 20,
		Participants: []string{"ella@mergington.edu", "scarlett@mergington.edu"}},
	{Name: "Math Club", Description: "Solve challenging problems and participate in math competitions", Schedule: "Tuesdays, 3:30 PM - 4:30 PM", MaxParticipants: 10,
		Participants: []string{"james@mergington.edu", "benjamin@mergington.edu"}},
	{Name: "Debate Team", Description: "Develop public speaking and argumentation skills", Schedule: "Fridays, 4:00 PM - 5:30 PM", MaxParticipants: 12,
		Participants: []string{"charlotte@mergington.edu", "henry@mergington.edu"}},
}

// LoadSeedFile reads a YAML catalogue of the form
//
//	activities:
//	  - name: Chess Club
//	    description: ...
//	    schedule: ...
//	    max_participants: 12
//	    participants: [a@b.c]
func LoadSeedFile(path string) ([]SeedActivity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(file.Activities))
	for i, a := range file.Activities {
		name := strings.TrimSpace(a.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("seed activity %d: name is required", i)
		case seen[name]:
			return nil, fmt.Errorf("seed activity %q: duplicate name", name)
		case a.MaxParticipants <= 0:
			return nil, fmt.Errorf("seed activity %q: max_participants must be positive", name)
		case len(a.Participants) > a.MaxParticipants:
			return nil, fmt.Errorf("seed activity %q: more participants than max_participants", name)
		}
		seen[name] = true
		file.Activities[i].Name = name
	}
	return file.Activities, nil
}

// Migrate creates the activity tables when they do not exist. Postgres
// deployments get the same tables from the goose migrations instead.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&Activity{}, &Participant{})
}

// Seed inserts seeds when the catalogue is empty and reports how many
// activities were created.
func Seed(ctx context.Context, db *gorm.DB, seeds []SeedActivity) (int, error) {
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Activity{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count activities: %w", err)
		}
		if count > 0 {
			return nil
		}

		for _, s := range seeds {
			act := Activity{
				Name:            s.Name,
				Description:     s.Description,
				Schedule:        s.Schedule,
				MaxParticipants: s.MaxParticipants,
			}
			for _, email := range s.Participants {
				act.Participants = append(act.Participants, Participant{Email: email})
			}
			if err := tx.Create(&act).Error; err != nil {
				return fmt.Errorf("seed activity %q: %w", s.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
