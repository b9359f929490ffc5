package server

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/orgstore/pkg/accountability"
	"github.com/nainya/orgstore/pkg/chain"
)

var validate = validator.New()

type createAccountabilityRequest struct {
	ID     string `validate:"omitempty,max=128"`
	Type   string `validate:"required,max=128"`
	Parent string `validate:"required,max=128"`
	Child  string `validate:"required,max=128,nefield=Parent"`
}

type listAccountabilitiesRequest struct {
	PartyID string `validate:"omitempty,max=128"`
	Limit   int    `validate:"min=0,max=10000"`
}

type insertVersionRequest struct {
	AccountabilityID string `validate:"required"`
	BeginDate        string `validate:"required,datetime=2006-01-02"`
	EndDate          string `validate:"omitempty,datetime=2006-01-02"`
	Erased           bool
	Justification    string `validate:"max=4096"`
}

type accountabilityRequest struct {
	AccountabilityID string `validate:"required"`
}

type versionRequest struct {
	VersionID string `validate:"required"`
}

type versionAsOfRequest struct {
	AccountabilityID string `validate:"required"`
	AsOf             string `validate:"required"`
}

type activeOnRequest struct {
	AccountabilityID string `validate:"required"`
	Date             string `validate:"required,datetime=2006-01-02"`
}

type creatorRequest struct {
	User string `validate:"required"`
}

func str(req *structpb.Struct, field string) string {
	return req.GetFields()[field].GetStringValue()
}

func boolean(req *structpb.Struct, field string) bool {
	return req.GetFields()[field].GetBoolValue()
}

func number(req *structpb.Struct, field string) int {
	return int(req.GetFields()[field].GetNumberValue())
}

// decode fills dst from req and validates it
func decode(req *structpb.Struct, dst interface{}) error {
	switch r := dst.(type) {
	case *createAccountabilityRequest:
		r.ID = str(req, "id")
		r.Type = str(req, "type")
		r.Parent = str(req, "parent")
		r.Child = str(req, "child")
	case *listAccountabilitiesRequest:
		r.PartyID = str(req, "party_id")
		r.Limit = number(req, "limit")
	case *insertVersionRequest:
		r.AccountabilityID = str(req, "accountability_id")
		r.BeginDate = str(req, "begin_date")
		r.EndDate = str(req, "end_date")
		r.Erased = boolean(req, "erased")
		r.Justification = str(req, "justification")
	case *accountabilityRequest:
		r.AccountabilityID = str(req, "accountability_id")
	case *versionRequest:
		r.VersionID = str(req, "version_id")
	case *versionAsOfRequest:
		r.AccountabilityID = str(req, "accountability_id")
		r.AsOf = str(req, "as_of")
	case *activeOnRequest:
		r.AccountabilityID = str(req, "accountability_id")
		r.Date = str(req, "date")
	case *creatorRequest:
		r.User = str(req, "user")
	default:
		return fmt.Errorf("unsupported request type %T", dst)
	}
	return validate.Struct(dst)
}

// attributes converts a validated insert request into chain attributes
func (r *insertVersionRequest) attributes() (chain.Attributes, error) {
	begin, err := civil.ParseDate(r.BeginDate)
	if err != nil {
		return chain.Attributes{}, fmt.Errorf("%w: begin_date: %v", chain.ErrInvalidArgument, err)
	}
	attrs := chain.Attributes{
		BeginDate:     begin,
		Erased:        r.Erased,
		Justification: r.Justification,
	}
	if r.EndDate != "" {
		end, err := civil.ParseDate(r.EndDate)
		if err != nil {
			return chain.Attributes{}, fmt.Errorf("%w: end_date: %v", chain.ErrInvalidArgument, err)
		}
		attrs.EndDate = &end
	}
	return attrs, nil
}

func versionFields(v *chain.Version) map[string]interface{} {
	fields := map[string]interface{}{
		"id":            v.ID,
		"begin_date":    v.BeginDate.String(),
		"erased":        v.Erased,
		"justification": v.Justification,
		"created_at":    v.CreatedAt.Format(time.RFC3339Nano),
		"created_by":    v.CreatedBy,
		"previous":      v.Previous,
		"head":          v.IsHead(),
	}
	if v.EndDate != nil {
		fields["end_date"] = v.EndDate.String()
	}
	if v.Accountability != "" {
		fields["accountability_id"] = v.Accountability
	}
	if v.SupersededBy != "" {
		fields["superseded_by"] = v.SupersededBy
	}
	return fields
}

func versionList(versions []*chain.Version) []interface{} {
	list := make([]interface{}, 0, len(versions))
	for _, v := range versions {
		list = append(list, versionFields(v))
	}
	return list
}

func accountabilityFields(acc *accountability.Accountability) map[string]interface{} {
	return map[string]interface{}{
		"id":         acc.ID,
		"type":       acc.Type,
		"parent":     acc.Parent,
		"child":      acc.Child,
		"created_at": acc.CreatedAt.Format(time.RFC3339Nano),
		"head":       acc.Head,
	}
}
