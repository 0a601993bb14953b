package errors

import (
	"errors"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTableNotFound      = errors.New("table not found")
	ErrTableStateNotFound = errors.New("table state not found")
	ErrTableAccessDenied  = errors.New("table access denied")
	ErrNotTableHost       = errors.New("only the table host can do that")
	ErrStateConflict      = errors.New("table state was modified concurrently")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidParams      = errors.New("invalid params")
)

// Kind groups game errors by what the caller did wrong.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTurn       Kind = "turn"
	KindBetting    Kind = "betting"
	KindResource   Kind = "resource"
)

// GameError is a recoverable rejection of a single request. Its Error
// string is the stable wire code.
type GameError struct {
	Code string
	Kind Kind
}

func (e *GameError) Error() string { return e.Code }

func newGameError(code string, kind Kind) *GameError {
	return &GameError{Code: code, Kind: kind}
}

var (
	ErrNotEnoughPlayers   = newGameError("NOT_ENOUGH_PLAYERS", KindValidation)
	ErrHandAlreadyActive  = newGameError("HAND_ALREADY_ACTIVE", KindValidation)
	ErrNoActiveHand       = newGameError("NO_ACTIVE_HAND", KindValidation)
	ErrPlayerNotInHand    = newGameError("PLAYER_NOT_IN_HAND", KindValidation)
	ErrPlayerCannotAct    = newGameError("PLAYER_CANNOT_ACT", KindValidation)
	ErrUnknownAction      = newGameError("UNKNOWN_ACTION", KindValidation)
	ErrAmountRequired     = newGameError("AMOUNT_REQUIRED", KindValidation)
	ErrNotYourTurn        = newGameError("NOT_YOUR_TURN", KindTurn)
	ErrCannotCheck        = newGameError("CANNOT_CHECK_FACING_BET", KindBetting)
	ErrCannotCallZero     = newGameError("CANNOT_CALL_ZERO", KindBetting)
	ErrCannotBet          = newGameError("CANNOT_BET_FACING_BET", KindBetting)
	ErrBetTooSmall        = newGameError("BET_TOO_SMALL", KindBetting)
	ErrCannotRaise        = newGameError("CANNOT_RAISE_WITHOUT_BET", KindBetting)
	ErrRaiseTooSmall      = newGameError("RAISE_TOO_SMALL", KindBetting)
	ErrBettingNotReopened = newGameError("BETTING_NOT_REOPENED", KindBetting)
	ErrAlreadyAllIn       = newGameError("ALREADY_ALL_IN", KindBetting)
	ErrEmptyDeck          = newGameError("EMPTY_DECK", KindResource)
	ErrInvalidHandSize    = newGameError("INVALID_HAND_SIZE", KindResource)
)

// IsGameError reports whether err is (or wraps) a GameError.
func IsGameError(err error) bool {
	var ge *GameError
	return errors.As(err, &ge)
}

// Code returns the wire code of a game error, or "" for anything else.
func Code(err error) string {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
