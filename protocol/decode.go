/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Decode parses one inbound frame into its typed Message. Parse failures wrap
// ErrMalformed and unrecognised discriminators wrap ErrUnknownType; callers
// log and drop both.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeWaiting:
		return decode[Waiting](data)
	case TypeGameStart:
		return decode[GameStart](data)
	case TypeUpdatePaddle:
		return decode[UpdatePaddle](data)
	case TypeUpdateBall:
		return decode[UpdateBall](data)
	case TypeUpdateScore:
		return decode[UpdateScore](data)
	case TypeGameOver:
		return decode[GameOver](data)
	case TypeError:
		return decode[Error](data)
	case TypeTournamentInfo:
		return decode[TournamentInfo](data)
	case TypeStartTournament:
		return decode[StartTournament](data)
	case TypeCountdownToFinal:
		return decode[CountdownToFinal](data)
	case TypeTournamentResults:
		return decode[TournamentResults](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decode[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, v.Type(), err)
	}

	return v, nil
}
