package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
)

// Fixtures describe a directory to load into a development database.
//
//	accounts:
//	  - name: Acme
//	    users:
//	      - {email: alice@acme.test, name: Alice}
//	    teams:
//	      - {name: Support, members: [alice@acme.test]}
//	super_users:
//	  - {email: ops@example.com, name: Ops, accounts: [Acme]}
type Fixtures struct {
	Accounts   []AccountFixture   `yaml:"accounts"`
	SuperUsers []SuperUserFixture `yaml:"super_users"`
}

type AccountFixture struct {
	Name  string        `yaml:"name"`
	Users []UserFixture `yaml:"users"`
	Teams []TeamFixture `yaml:"teams"`
}

type UserFixture struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	AvatarURL    string `yaml:"avatar_url"`
	Role         string `yaml:"role"`
	Availability string `yaml:"availability"`
}

type TeamFixture struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Members     []string `yaml:"members"`
}

type SuperUserFixture struct {
	Email     string   `yaml:"email"`
	Name      string   `yaml:"name"`
	AvatarURL string   `yaml:"avatar_url"`
	Accounts  []string `yaml:"accounts"`
}

// SeedResult maps fixture names to the ids they received.
type SeedResult struct {
	Accounts map[string]int64
	Users    map[string]int64
}

func LoadFixtures(path string) (Fixtures, error) {
	var fx Fixtures
	raw, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return fx, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return fx, nil
}

// Seed loads fx in one transaction. Rows are matched by account name and
// user email, so seeding the same file twice is a no-op.
func Seed(ctx context.Context, gdb *gorm.DB, fx Fixtures) (SeedResult, error) {
	res := SeedResult{Accounts: map[string]int64{}, Users: map[string]int64{}}
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, af := range fx.Accounts {
			name := strings.TrimSpace(af.Name)
			if name == "" {
				return fmt.Errorf("account without name")
			}
			acct := types.Account{}
			if err := tx.Where("name = ?", name).Attrs(types.Account{Name: name}).FirstOrCreate(&acct).Error; err != nil {
				return fmt.Errorf("seed account %q: %w", name, err)
			}
			res.Accounts[name] = acct.ID

			for _, uf := range af.Users {
				u, err := seedUser(tx, uf.Email, uf.Name, uf.AvatarURL, identity.KindMember)
				if err != nil {
					return err
				}
				res.Users[u.Email] = u.ID
				au := types.AccountUser{
					AccountID:          acct.ID,
					UserID:             u.ID,
					Role:               defaultString(uf.Role, "agent"),
					AvailabilityStatus: defaultString(uf.Availability, "offline"),
				}
				if err := tx.Where("account_id = ? AND user_id = ?", acct.ID, u.ID).Attrs(au).FirstOrCreate(&types.AccountUser{}).Error; err != nil {
					return fmt.Errorf("seed account user %q: %w", u.Email, err)
				}
			}

			for _, tf := range af.Teams {
				team := types.Team{}
				if err := tx.Where("account_id = ? AND name = ?", acct.ID, tf.Name).
					Attrs(types.Team{AccountID: acct.ID, Name: tf.Name, Description: tf.Description}).FirstOrCreate(&team).Error; err != nil {
					return fmt.Errorf("seed team %q: %w", tf.Name, err)
				}
				for _, email := range tf.Members {
					userID, ok := res.Users[strings.ToLower(strings.TrimSpace(email))]
					if !ok {
						return fmt.Errorf("team %q: unknown member %q", tf.Name, email)
					}
					if err := tx.Where("team_id = ? AND user_id = ?", team.ID, userID).
						Attrs(types.TeamMember{TeamID: team.ID, UserID: userID}).FirstOrCreate(&types.TeamMember{}).Error; err != nil {
						return fmt.Errorf("seed team member %q: %w", email, err)
					}
				}
			}
		}

		for _, sf := range fx.SuperUsers {
			u, err := seedUser(tx, sf.Email, sf.Name, sf.AvatarURL, identity.KindSuperUser)
			if err != nil {
				return err
			}
			res.Users[u.Email] = u.ID
			for _, acctName := range sf.Accounts {
				acctID, ok := res.Accounts[strings.TrimSpace(acctName)]
				if !ok {
					return fmt.Errorf("super user %q: unknown account %q", sf.Email, acctName)
				}
				if err := tx.Where("account_id = ? AND user_id = ?", acctID, u.ID).
					Attrs(types.SuperUserAccess{AccountID: acctID, UserID: u.ID}).FirstOrCreate(&types.SuperUserAccess{}).Error; err != nil {
					return fmt.Errorf("seed super user access %q: %w", sf.Email, err)
				}
			}
		}
		return nil
	})
	return res, err
}

func seedUser(tx *gorm.DB, email, name, avatarURL string, kind identity.Kind) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("user without email")
	}
	u := &types.User{}
	attrs := types.User{Email: email, DisplayName: strings.TrimSpace(name), AvatarURL: avatarURL, Kind: kind}
	if err := tx.Where("email = ?", email).Attrs(attrs).FirstOrCreate(u).Error; err != nil {
		return nil, fmt.Errorf("seed user %q: %w", email, err)
	}
	return u, nil
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
