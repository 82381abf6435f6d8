package configstore

import "strings"

// format tracks which on-disk shape a record was read from, so Save can
// reproduce the shape untouched where the source format requires it and
// migrate it forward where it doesn't.
type format int

const (
	// formatCurrent is the pipe-delimited form:
	//   <service>_<token>|<alignment>|<fields>|<template>
	formatCurrent format = iota
	// formatLegacyToken is the older form with a real token but no
	// alignment column:
	//   <service>_<token> = <fields>::<template>
	// It is migrated to formatCurrent (with an empty alignment) the first
	// time the store is saved.
	formatLegacyToken
	// formatLegacyNoToken is the tokenless form:
	//   <service> = <fields>::<template>
	// It is read as the synthetic token "legacy" and its on-disk line is
	// never reissued into the pipe form.
	formatLegacyNoToken
)

// legacyToken is the synthetic token assigned to a tokenless legacy line.
const legacyToken = "legacy"

// Record is one webhook configuration entry.
type Record struct {
	Service   string
	Token     string
	Alignment string
	Fields    string
	Template  string

	format format
}

// key is the composite identifier used for in-memory indexing and as the
// on-disk key for non-legacy records.
func (r Record) key() string {
	return r.Service + "_" + r.Token
}

func (r Record) serialize() string {
	if r.format == formatLegacyNoToken {
		return r.Service + " = " + r.Fields + "::" + r.Template
	}
	return strings.Join([]string{r.key(), r.Alignment, r.Fields, r.Template}, "|")
}

// parseLine parses one non-empty, non-comment, non-section-header line of
// the configuration file. ok is false for lines that don't look like a
// record at all (callers skip those rather than failing the whole load).
func parseLine(line string) (Record, bool) {
	if idx := strings.Index(line, "|"); idx >= 0 {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			return Record{}, false
		}
		service, token, ok := splitKey(parts[0])
		if !ok {
			return Record{}, false
		}
		return Record{
			Service:   service,
			Token:     token,
			Alignment: parts[1],
			Fields:    parts[2],
			Template:  parts[3],
			format:    formatCurrent,
		}, true
	}

	eq := strings.Index(line, " = ")
	if eq < 0 {
		return Record{}, false
	}
	key := line[:eq]
	rest := line[eq+3:]

	sep := strings.Index(rest, "::")
	if sep < 0 {
		return Record{}, false
	}
	fields, template := rest[:sep], rest[sep+2:]

	if service, token, ok := splitKey(key); ok {
		return Record{
			Service:  service,
			Token:    token,
			Fields:   fields,
			Template: template,
			format:   formatLegacyToken,
		}, true
	}

	if !serviceRe.MatchString(key) {
		return Record{}, false
	}
	return Record{
		Service:  key,
		Token:    legacyToken,
		Fields:   fields,
		Template: template,
		format:   formatLegacyNoToken,
	}, true
}

// splitKey splits a "<service>_<token>" key by recognizing a trailing
// 32-character alphanumeric token preceded by an underscore. Plain service
// names may themselves contain underscores, so the token shape (fixed
// length, fixed alphabet) is what disambiguates the split point, not the
// last underscore in the string.
func splitKey(key string) (service, token string, ok bool) {
	const tokenLen = 32
	if len(key) < tokenLen+2 {
		return "", "", false
	}
	cut := len(key) - tokenLen
	if key[cut-1] != '_' {
		return "", "", false
	}
	candidate := key[cut:]
	if !tokenRe.MatchString(candidate) {
		return "", "", false
	}
	return key[:cut-1], candidate, true
}
