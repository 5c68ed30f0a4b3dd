package ingest

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// IDNormalizer turns a raw cast-vote-record precinct cell into a demographic-table id
type IDNormalizer func(raw string) (model.PrecinctID, error)

// NormalizerFor returns the normalizer for a configured id format
func NormalizerFor(format string) (IDNormalizer, error) {
	switch format {
	case "":
		return verbatimID, nil
	case model.IDFormatCambridge:
		return cambridgeID, nil
	case model.IDFormatMinneapolis:
		return minneapolisID, nil
	default:
		return nil, fmt.Errorf("unknown id format %q", format)
	}
}

func verbatimID(raw string) (model.PrecinctID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("empty precinct id")
	}
	return model.PrecinctID(id), nil
}

// cambridgeID converts a ballot id such as "0103051234" into ward-precinct
// form "3-5": characters [2:4] are the ward, [4:6] the precinct, and leading
// zeros are dropped from both.
func cambridgeID(raw string) (model.PrecinctID, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 6 {
		return "", fmt.Errorf("cambridge id %q: want at least 6 characters", raw)
	}
	id := s[2:4] + "-" + s[4:6]
	id = strings.ReplaceAll(id, "-0", "-")
	id = strings.TrimPrefix(id, "0")
	return model.PrecinctID(id), nil
}

var minneapolisReplacer = strings.NewReplacer(
	"MINNEAPOLIS ", "",
	"W-", "W",
	"P-", "P",
)

// minneapolisID converts "MINNEAPOLIS W-1 P-01" into "W1-P1"
func minneapolisID(raw string) (model.PrecinctID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty precinct id")
	}
	s = minneapolisReplacer.Replace(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "P0", "P")
	return model.PrecinctID(s), nil
}
