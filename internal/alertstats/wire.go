package alertstats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/42ity/fty-alert-stats/internal/svcerr"
)

// envelopeClass is the cheap field every stream frame carries,
// sniffed before a full JSON unmarshal so malformed or uninteresting
// frames are rejected without paying for a typed decode.
func envelopeClass(raw []byte) string {
	return gjson.GetBytes(raw, "class").String()
}

// assetWire is the on-wire shape of an asset stream frame.
type assetWire struct {
	Class     string `json:"class"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Parent    string `json:"parent"`
	Operation string `json:"operation"`
}

// alertWire is the on-wire shape of an alert stream frame.
type alertWire struct {
	Class    string `json:"class"`
	Rule     string `json:"rule"`
	Asset    string `json:"asset"`
	State    string `json:"state"`
	Severity string `json:"severity"`
	Time     int64  `json:"time"` // unix seconds
	TTL      int64  `json:"ttl"`  // seconds
}

// DecodeStreamFrame routes raw to its asset or alert decoder based on
// its "class" field, returning exactly one of the two non-nil.
func DecodeStreamFrame(raw []byte) (*Asset, *Alert, error) {
	switch envelopeClass(raw) {
	case "asset":
		var w assetWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, nil, svcerr.Wrap(svcerr.CodeDecodeFailure, "decode asset frame", err)
		}
		a := Asset{
			Name:      w.Name,
			Type:      w.Type,
			Subtype:   w.Subtype,
			Parent:    w.Parent,
			Operation: AssetOp(w.Operation),
		}
		return &a, nil, nil

	case "alert":
		var w alertWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, nil, svcerr.Wrap(svcerr.CodeDecodeFailure, "decode alert frame", err)
		}
		al := Alert{
			Rule:      w.Rule,
			AssetName: w.Asset,
			State:     AlertState(w.State),
			Severity:  Severity(w.Severity),
			Time:      time.Unix(w.Time, 0).UTC(),
			TTL:       time.Duration(w.TTL) * time.Second,
		}
		return nil, &al, nil

	default:
		return nil, nil, svcerr.New(svcerr.CodeDecodeFailure, fmt.Sprintf("unrecognized stream envelope class %q", envelopeClass(raw)))
	}
}
