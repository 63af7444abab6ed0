// Package schemes provides the leaderboard scoring schemes that implement
// the domain.ScoreAggregator interface for the Hydra contest engine.
package schemes

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Default scheme parameters.
const (
	// DefaultEloK is the Elo K-factor applied to every rating update.
	DefaultEloK = 32.0

	// DefaultEloInitial is the rating every model starts a contest with.
	DefaultEloInitial = 1500.0

	// DefaultWinPoints is the tournament reward for a match win.
	DefaultWinPoints = 3

	// DefaultDrawPoints is the tournament reward for a drawn match.
	DefaultDrawPoints = 1
)

// ErrInvalidSchemeConfig is returned when scheme parameters fail validation.
var ErrInvalidSchemeConfig = errors.New("invalid scheme configuration")

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// Config holds the tunable parameters shared by the built-in schemes.
// Each scheme reads only the fields it needs.
type Config struct {
	// K is the Elo K-factor controlling how far one comparison moves ratings.
	K float64 `yaml:"elo_k" json:"elo_k" validate:"gt=0,lte=400"`

	// InitialRating is the Elo rating assigned before the first round.
	InitialRating float64 `yaml:"elo_initial" json:"elo_initial" validate:"gt=0"`

	// WinPoints is awarded to the winner of a tournament match.
	WinPoints int `yaml:"win_points" json:"win_points" validate:"min=1"`

	// DrawPoints is awarded to each side of a drawn tournament match.
	DrawPoints int `yaml:"draw_points" json:"draw_points" validate:"min=0,ltefield=WinPoints"`
}

// DefaultConfig returns the standard scheme parameters: K=32, initial rating
// 1500, three points per win and one per draw.
func DefaultConfig() Config {
	return Config{
		K:             DefaultEloK,
		InitialRating: DefaultEloInitial,
		WinPoints:     DefaultWinPoints,
		DrawPoints:    DefaultDrawPoints,
	}
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchemeConfig, err)
	}
	return nil
}
