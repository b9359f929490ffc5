package chain

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/nainya/orgstore/pkg/storage"
)

// Prefixes for version storage
const (
	PREFIX_VERSION         = uint32(2000)
	PREFIX_VERSION_CREATOR = uint32(2100) // Index by (createdBy, versionID)
)

func versionKey(id string) []byte {
	return storage.EncodeKey(PREFIX_VERSION, []storage.Value{
		storage.NewStringValue(id),
	})
}

func creatorKey(user, id string) []byte {
	return storage.EncodeKey(PREFIX_VERSION_CREATOR, []storage.Value{
		storage.NewStringValue(user),
		storage.NewStringValue(id),
	})
}

func creatorPrefix(user string) []byte {
	return storage.EncodeKey(PREFIX_VERSION_CREATOR, []storage.Value{
		storage.NewStringValue(user),
	})
}

func getVersion(tx *storage.KVTX, id string) (*Version, error) {
	val, ok, err := tx.Get(versionKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, id)
	}
	return decodeVersion(val)
}

func putVersion(tx *storage.KVTX, v *Version) error {
	return tx.Set(versionKey(v.ID), encodeVersion(v))
}

func encodeVersion(v *Version) []byte {
	end := ""
	if v.EndDate != nil {
		end = v.EndDate.String()
	}
	return storage.EncodeValues([]storage.Value{
		storage.NewStringValue(v.ID),
		storage.NewStringValue(v.Accountability),
		storage.NewStringValue(v.Previous),
		storage.NewStringValue(v.SupersededBy),
		storage.NewStringValue(v.BeginDate.String()),
		storage.NewStringValue(end),
		storage.NewBoolValue(v.Erased),
		storage.NewStringValue(v.Justification),
		storage.NewTimeValue(v.CreatedAt),
		storage.NewStringValue(v.CreatedBy),
	})
}

func decodeVersion(val []byte) (*Version, error) {
	vals, err := storage.DecodeValues(val)
	if err != nil {
		return nil, err
	}
	if len(vals) < 10 {
		return nil, fmt.Errorf("%w: incomplete version data", storage.ErrCorrupted)
	}

	begin, err := civil.ParseDate(vals[4].String())
	if err != nil {
		return nil, fmt.Errorf("%w: begin date: %v", storage.ErrCorrupted, err)
	}

	var end *civil.Date
	if s := vals[5].String(); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("%w: end date: %v", storage.ErrCorrupted, err)
		}
		end = &d
	}

	return &Version{
		ID:             vals[0].String(),
		Accountability: vals[1].String(),
		Previous:       vals[2].String(),
		SupersededBy:   vals[3].String(),
		BeginDate:      begin,
		EndDate:        end,
		Erased:         vals[6].Bool,
		Justification:  vals[7].String(),
		CreatedAt:      vals[8].Time,
		CreatedBy:      vals[9].String(),
	}, nil
}
