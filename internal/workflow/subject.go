package workflow

import (
	"fmt"
	"strings"
)

// SubjectKind tags the business object an approval request points at.
type SubjectKind string

const (
	SubjectBill     SubjectKind = "bill"
	SubjectContract SubjectKind = "contract"
	SubjectUser     SubjectKind = "user"
	SubjectRole     SubjectKind = "role"
)

// SubjectRef is a (kind, id) pointer to the object under approval. The engine never loads the object.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

func (r SubjectRef) Validate() error {
	switch r.Kind {
	case SubjectBill, SubjectContract, SubjectUser, SubjectRole:
	default:
		return fmt.Errorf("%w: unknown subject kind %q", ErrValidation, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: subject id is required", ErrValidation)
	}
	return nil
}

func (r SubjectRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// RequestType selects the stage chain and the payload schema.
type RequestType string

const (
	RequestVoidBill         RequestType = "void_bill"
	RequestContract         RequestType = "contract"
	RequestUserCreate       RequestType = "user_create"
	RequestRoleChange       RequestType = "role_change"
	RequestPermissionChange RequestType = "permission_change"
)

var requestSubjects = map[RequestType]SubjectKind{
	RequestVoidBill:         SubjectBill,
	RequestContract:         SubjectContract,
	RequestUserCreate:       SubjectUser,
	RequestRoleChange:       SubjectUser,
	RequestPermissionChange: SubjectRole,
}

// RequestTypes lists every known request type.
func RequestTypes() []RequestType {
	return []RequestType{RequestVoidBill, RequestContract, RequestUserCreate, RequestRoleChange, RequestPermissionChange}
}

func (t RequestType) IsValid() bool {
	_, ok := requestSubjects[t]
	return ok
}

// SubjectKind returns the only subject kind a request of this type may reference.
func (t RequestType) SubjectKind() SubjectKind {
	return requestSubjects[t]
}
