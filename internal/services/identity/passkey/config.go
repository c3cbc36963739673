package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// ChallengeKind describes the WebAuthn ceremony a challenge belongs to.
type ChallengeKind string

const (
	ChallengeKindRegistration ChallengeKind = "registration"
	ChallengeKindAssertion    ChallengeKind = "assertion"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"VENUELINK_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"VenueLink"`
	RPID          string        `env:"VENUELINK_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"VENUELINK_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"VENUELINK_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "VenueLink",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8086"},
			ChallengeTTL:  5 * time.Minute,
		}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "VenueLink"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8086"}
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return cfg
}
