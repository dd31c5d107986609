package domain

import (
	"github.com/google/uuid"

	dErrors "crosswalk/pkg/domain-errors"
)

// Typed identifiers for every aggregate. Each is a distinct type over
// uuid.UUID so a requirement ID can never be handed to a control lookup.

type FrameworkID uuid.UUID

type VersionID uuid.UUID

type RequirementID uuid.UUID

type ControlID uuid.UUID

type EvidenceID uuid.UUID

type MappingID uuid.UUID

type DriftID uuid.UUID

type ActionID uuid.UUID

func NewFrameworkID() FrameworkID     { return FrameworkID(uuid.New()) }
func NewVersionID() VersionID         { return VersionID(uuid.New()) }
func NewRequirementID() RequirementID { return RequirementID(uuid.New()) }
func NewControlID() ControlID         { return ControlID(uuid.New()) }
func NewEvidenceID() EvidenceID       { return EvidenceID(uuid.New()) }
func NewMappingID() MappingID         { return MappingID(uuid.New()) }
func NewDriftID() DriftID             { return DriftID(uuid.New()) }
func NewActionID() ActionID           { return ActionID(uuid.New()) }

func parse(kind, v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be nil", kind)
	}
	return u, nil
}

func ParseFrameworkID(v string) (FrameworkID, error) {
	u, err := parse("framework", v)
	return FrameworkID(u), err
}

func ParseVersionID(v string) (VersionID, error) {
	u, err := parse("version", v)
	return VersionID(u), err
}

func ParseRequirementID(v string) (RequirementID, error) {
	u, err := parse("requirement", v)
	return RequirementID(u), err
}

func ParseControlID(v string) (ControlID, error) {
	u, err := parse("control", v)
	return ControlID(u), err
}

func ParseEvidenceID(v string) (EvidenceID, error) {
	u, err := parse("evidence", v)
	return EvidenceID(u), err
}

func ParseMappingID(v string) (MappingID, error) {
	u, err := parse("mapping", v)
	return MappingID(u), err
}

func ParseDriftID(v string) (DriftID, error) {
	u, err := parse("drift", v)
	return DriftID(u), err
}

func ParseActionID(v string) (ActionID, error) {
	u, err := parse("action", v)
	return ActionID(u), err
}

func (id FrameworkID) String() string   { return uuid.UUID(id).String() }
func (id VersionID) String() string     { return uuid.UUID(id).String() }
func (id RequirementID) String() string { return uuid.UUID(id).String() }
func (id ControlID) String() string     { return uuid.UUID(id).String() }
func (id EvidenceID) String() string    { return uuid.UUID(id).String() }
func (id MappingID) String() string     { return uuid.UUID(id).String() }
func (id DriftID) String() string       { return uuid.UUID(id).String() }
func (id ActionID) String() string      { return uuid.UUID(id).String() }

func (id FrameworkID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id VersionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RequirementID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ControlID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id MappingID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DriftID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

func (id FrameworkID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id VersionID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id RequirementID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ControlID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EvidenceID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id MappingID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id DriftID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *FrameworkID) UnmarshalText(b []byte) error {
	parsed, err := ParseFrameworkID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *VersionID) UnmarshalText(b []byte) error {
	parsed, err := ParseVersionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequirementID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequirementID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ControlID) UnmarshalText(b []byte) error {
	parsed, err := ParseControlID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EvidenceID) UnmarshalText(b []byte) error {
	parsed, err := ParseEvidenceID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MappingID) UnmarshalText(b []byte) error {
	parsed, err := ParseMappingID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DriftID) UnmarshalText(b []byte) error {
	parsed, err := ParseDriftID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ActionID) UnmarshalText(b []byte) error {
	parsed, err := ParseActionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
