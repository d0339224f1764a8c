package mbql

import (
	"encoding/json"
	"fmt"

	"github.com/birbparty/metabase-go/apierr"
)

// DatasetQuery is a decoded dataset_query: exactly one of MBQL and Native is
// set.
type DatasetQuery struct {
	MBQL   *Query
	Native *NativeQuery
}

// Type returns "query" or "native".
func (d DatasetQuery) Type() string {
	if d.Native != nil {
		return "native"
	}
	return "query"
}

// MarshalJSON encodes whichever variant is set.
func (d DatasetQuery) MarshalJSON() ([]byte, error) {
	switch {
	case d.MBQL != nil && d.Native != nil:
		return nil, apierr.New(apierr.KindValidation, "dataset query cannot be both MBQL and native")
	case d.MBQL != nil:
		return json.Marshal(*d.MBQL)
	case d.Native != nil:
		return json.Marshal(*d.Native)
	}
	return nil, apierr.New(apierr.KindValidation, "dataset query is empty")
}

// ParseDatasetQuery decodes a stored or hand-written dataset_query. Native
// parameters are rebound from their values, so the result validates the same
// way the stored query did.
func ParseDatasetQuery(data []byte) (DatasetQuery, error) {
	var env datasetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return DatasetQuery{}, apierr.Wrap(err, apierr.KindSerialization, "parse dataset query")
	}
	switch env.Type {
	case "query":
		q, err := ParseQuery(data)
		if err != nil {
			return DatasetQuery{}, err
		}
		return DatasetQuery{MBQL: &q}, nil
	case "native":
		n, err := parseNative(env)
		if err != nil {
			return DatasetQuery{}, apierr.Wrap(err, apierr.KindSerialization, "parse native dataset query")
		}
		return DatasetQuery{Native: n}, nil
	}
	return DatasetQuery{}, apierr.Newf(apierr.KindSerialization, "unknown dataset query type %q", env.Type)
}

func parseNative(env datasetEnvelope) (*NativeQuery, error) {
	var body nativeBody
	if len(env.Native) == 0 {
		return nil, fmt.Errorf("native dataset query has no native object")
	}
	if err := json.Unmarshal(env.Native, &body); err != nil {
		return nil, err
	}
	q := NewNativeQuery(body.Query).WithDatabase(env.Database)
	if len(env.Parameters) == 0 {
		return q, nil
	}

	var params []struct {
		Target []json.RawMessage `json:"target"`
		Value  interface{}       `json:"value"`
	}
	if err := json.Unmarshal(env.Parameters, &params); err != nil {
		return nil, err
	}
	for _, p := range params {
		if len(p.Target) != 2 {
			continue
		}
		var tag []string
		if err := json.Unmarshal(p.Target[1], &tag); err != nil || len(tag) != 2 || tag[0] != "template-tag" {
			continue
		}
		q.Bind(tag[1], p.Value)
	}
	return q, nil
}
