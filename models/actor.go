package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Actor identifies who performed a detection or moderation action: a web
// console user, a Telegram user, or an internal system component. Exactly one
// arm is ever populated; use the constructors rather than the zero value.
//
// Stored as a single text column ("web:<id>", "telegram:<id>",
// "system:<name>") so detection events and moderation actions share one
// uniform audit representation.
type Actor struct {
	kind actorKind
	id   int64
	name string
}

type actorKind uint8

const (
	actorUnknown actorKind = iota
	actorWeb
	actorTelegram
	actorSystem
)

const systemFallback = "System"

func WebUserActor(id int64) Actor {
	return Actor{kind: actorWeb, id: id}
}

func TelegramUserActor(id int64) Actor {
	return Actor{kind: actorTelegram, id: id}
}

func SystemActor(name string) Actor {
	if name == "" {
		name = systemFallback
	}
	return Actor{kind: actorSystem, name: name}
}

func (a Actor) IsZero() bool {
	return a.kind == actorUnknown
}

func (a Actor) WebUserID() (int64, bool) {
	return a.id, a.kind == actorWeb
}

func (a Actor) TelegramUserID() (int64, bool) {
	return a.id, a.kind == actorTelegram
}

func (a Actor) System() (string, bool) {
	return a.name, a.kind == actorSystem
}

func (a Actor) String() string {
	switch a.kind {
	case actorWeb:
		return fmt.Sprintf("web user %d", a.id)
	case actorTelegram:
		return fmt.Sprintf("telegram user %d", a.id)
	case actorSystem:
		return a.name
	default:
		return systemFallback
	}
}

func (a Actor) wire() string {
	switch a.kind {
	case actorWeb:
		return fmt.Sprintf("web:%d", a.id)
	case actorTelegram:
		return fmt.Sprintf("telegram:%d", a.id)
	case actorSystem:
		return "system:" + a.name
	default:
		// an unset actor is recorded as the system fallback, never as empty
		return "system:" + systemFallback
	}
}

func ParseActor(s string) (Actor, error) {
	prefix, rest, found := strings.Cut(s, ":")
	if !found {
		return Actor{}, fmt.Errorf("invalid actor encoding: %q", s)
	}
	switch prefix {
	case "web", "telegram":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Actor{}, fmt.Errorf("invalid actor id in %q: %w", s, err)
		}
		if prefix == "web" {
			return WebUserActor(id), nil
		}
		return TelegramUserActor(id), nil
	case "system":
		return SystemActor(rest), nil
	default:
		return Actor{}, fmt.Errorf("unknown actor kind: %q", prefix)
	}
}

func (a Actor) Value() (driver.Value, error) {
	return a.wire(), nil
}

func (a *Actor) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Actor", value)
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.wire())
}

func (a *Actor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
