package repository

import (
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	fieldInferredID = "inferred_id"
	fieldRawData    = "raw_data"
	fieldRowNumber  = "row_number"
)

// RawDataField returns the document path of a header inside raw_data.
// Headers that cannot be addressed by a dotted path (see plainHeader) have
// no field path and are matched through rawDataValue instead.
func RawDataField(header string) string {
	return fieldRawData + "." + header
}

// plainHeader reports whether header can be used in a dotted field path.
// Mongo reads "S.No." as nested fields and rejects a leading '$'.
func plainHeader(header string) bool {
	return !strings.Contains(header, ".") && !strings.HasPrefix(header, "$")
}

// rawDataValue is an aggregation expression yielding raw_data[header] as a
// string, for headers that are not plain.
func rawDataValue(header string) bson.M {
	return bson.M{"$toString": bson.M{"$getField": bson.M{
		"field": bson.M{"$literal": header},
		"input": "$" + fieldRawData,
	}}}
}

// headerMatch matches one header value against re.
func headerMatch(header string, re primitive.Regex) bson.M {
	if plainHeader(header) {
		return bson.M{RawDataField(header): bson.M{"$regex": re}}
	}
	return bson.M{"$expr": bson.M{"$regexMatch": bson.M{
		"input":   rawDataValue(header),
		"regex":   re.Pattern,
		"options": re.Options,
	}}}
}

// containsPattern matches value as a case-insensitive literal substring.
func containsPattern(value string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(value), Options: "i"}
}

// exactPattern matches value as a case-insensitive literal, whole field.
func exactPattern(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}

// BuildRecordFilter translates a RecordQuery into a Mongo filter.
//
// Search ORs a substring match over inferred_id and every header field.
// Filters on known headers match raw_data.<header> exactly. Outside the
// headers only inferred_id and row_number can be filtered; other keys are
// dropped. The upload and owner scope is applied last and cannot be
// overridden by a filter.
func BuildRecordFilter(q RecordQuery) bson.M {
	filter := bson.M{}
	var exprs []bson.M

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := containsPattern(search)
		or := make([]bson.M, 0, len(q.Headers)+1)
		or = append(or, bson.M{fieldInferredID: bson.M{"$regex": pattern}})
		for _, header := range q.Headers {
			or = append(or, headerMatch(header, pattern))
		}
		filter["$or"] = or
	}

	known := make(map[string]bool, len(q.Headers))
	for _, header := range q.Headers {
		known[header] = true
	}

	for key, value := range q.Filters {
		if key == "" || value == "" {
			continue
		}
		switch {
		case known[key] && plainHeader(key):
			filter[RawDataField(key)] = bson.M{"$regex": exactPattern(value)}
		case known[key]:
			exprs = append(exprs, headerMatch(key, exactPattern(value)))
		case key == fieldInferredID:
			filter[fieldInferredID] = bson.M{"$regex": exactPattern(value)}
		case key == fieldRowNumber:
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				filter[fieldRowNumber] = n
			}
		}
	}

	if len(exprs) > 0 {
		filter["$and"] = exprs
	}

	if q.UploadID != "" {
		filter["upload_id"] = q.UploadID
	}
	if q.OwnerID != "" {
		filter["owner_id"] = q.OwnerID
	}

	return filter
}

// RecordSortField resolves the sort key for a record listing.
// Headers sort on their raw_data field; row_number is the default and the
// fallback for headers without a field path.
func RecordSortField(q RecordQuery) string {
	switch q.SortBy {
	case "", fieldRowNumber, "rowNumber":
		return fieldRowNumber
	case fieldInferredID, "inferredId", "id":
		return fieldInferredID
	case "created_at", "createdAt":
		return "created_at"
	}
	for _, header := range q.Headers {
		if header == q.SortBy && plainHeader(header) {
			return RawDataField(header)
		}
	}
	return fieldRowNumber
}
