package classifier

import (
	"slices"
	"strings"

	"sidebyside-backend/lib/textutil"
)

// Rule maps a canonical connector name to the phrases that identify it.
// A pattern is a literal phrase matched case insensitively on word
// boundaries, spaces in it also match dashes, underscores or nothing.
// Patterns prefixed with "re:" are used as raw regular expressions.
type Rule struct {
	Connector string   `json:"connector"`
	Patterns  []string `json:"patterns"`
}

// DefaultRules returns the built-in rule table, in priority order. Table
// formats that are commonly read through the hive metastore come before
// hive, so "Iceberg tables in the Hive metastore" is an iceberg change.
func DefaultRules() []Rule {
	return []Rule{
		{Connector: "delta-lake", Patterns: []string{"delta lake", "deltalake"}},
		{Connector: "iceberg", Patterns: []string{"iceberg"}},
		{Connector: "hudi", Patterns: []string{"hudi"}},
		{Connector: "hive", Patterns: []string{"hive"}},
		{Connector: "bigquery", Patterns: []string{"bigquery", "big query"}},
		{Connector: "mysql", Patterns: []string{"mysql"}},
		{Connector: "mariadb", Patterns: []string{"mariadb"}},
		{Connector: "postgresql", Patterns: []string{"postgresql", "postgres"}},
		{Connector: "greenplum", Patterns: []string{"greenplum"}},
		{Connector: "oracle", Patterns: []string{"oracle"}},
		{Connector: "sql-server", Patterns: []string{"sql server", "mssql"}},
		{Connector: "synapse", Patterns: []string{"synapse"}},
		{Connector: "redshift", Patterns: []string{"redshift"}},
		{Connector: "snowflake", Patterns: []string{"snowflake"}},
		{Connector: "singlestore", Patterns: []string{"singlestore", "memsql"}},
		{Connector: "teradata", Patterns: []string{"teradata"}},
		{Connector: "db2", Patterns: []string{"db2"}},
		{Connector: "netezza", Patterns: []string{"netezza"}},
		{Connector: "sap-hana", Patterns: []string{"sap hana", "hana"}},
		{Connector: "vertica", Patterns: []string{"vertica"}},
		{Connector: "exasol", Patterns: []string{"exasol"}},
		{Connector: "duckdb", Patterns: []string{"duckdb"}},
		{Connector: "clickhouse", Patterns: []string{"clickhouse"}},
		{Connector: "druid", Patterns: []string{"druid"}},
		{Connector: "pinot", Patterns: []string{"pinot"}},
		{Connector: "phoenix", Patterns: []string{"phoenix"}},
		{Connector: "kudu", Patterns: []string{"kudu"}},
		{Connector: "accumulo", Patterns: []string{"accumulo"}},
		{Connector: "ignite", Patterns: []string{"apache ignite", "ignite connector"}},
		{Connector: "mongodb", Patterns: []string{"mongodb", "mongo"}},
		{Connector: "cassandra", Patterns: []string{"cassandra"}},
		{Connector: "dynamodb", Patterns: []string{"dynamodb"}},
		{Connector: "elasticsearch", Patterns: []string{"elasticsearch"}},
		{Connector: "opensearch", Patterns: []string{"opensearch"}},
		{Connector: "redis", Patterns: []string{"redis"}},
		{Connector: "kafka", Patterns: []string{"kafka"}},
		{Connector: "kinesis", Patterns: []string{"kinesis"}},
		{Connector: "loki", Patterns: []string{"loki"}},
		{Connector: "prometheus", Patterns: []string{"prometheus connector"}},
		{Connector: "salesforce", Patterns: []string{"salesforce"}},
		{Connector: "google-sheets", Patterns: []string{"google sheets"}},
		{Connector: "thrift", Patterns: []string{"thrift connector"}},
		{Connector: "jmx", Patterns: []string{"jmx"}},
		{Connector: "tpch", Patterns: []string{"tpch", "tpc-h"}},
		{Connector: "tpcds", Patterns: []string{"tpcds", "tpc-ds"}},
		{Connector: "blackhole", Patterns: []string{"black hole", "blackhole"}},
		{Connector: "memory", Patterns: []string{"memory connector"}},
		{Connector: "faker", Patterns: []string{"faker"}},
		{Connector: "local-file", Patterns: []string{"local file connector"}},
		{Connector: "atop", Patterns: []string{"atop connector"}},
		{Connector: "raptor", Patterns: []string{"raptor"}},
	}
}

// Merge combines configured rules with the defaults. Configured rules take
// priority, in their given order, except over a more specific rule they
// would shadow: a configured "delta" goes right after the rule for
// "delta lake" so that phrase still classifies as delta-lake. With replace
// the defaults are dropped and the configured order is kept as is.
func Merge(configured []Rule, replace bool) []Rule {
	if replace {
		return append([]Rule{}, configured...)
	}
	out := DefaultRules()
	ahead := 0
	for _, rule := range configured {
		at := ahead
		for i, other := range out {
			if i >= at && shadows(rule, other) {
				at = i + 1
			}
		}
		out = slices.Insert(out, at, rule)
		if at == ahead {
			ahead++
		}
	}
	return out
}

// shadows reports if a pattern of rule matches a longer literal pattern of
// other, a different connector. Patterns naming the same thing, "delta lake"
// and "deltalake" for example, are overrides and not shadows.
func shadows(rule, other Rule) bool {
	if textutil.Slug(rule.Connector) == textutil.Slug(other.Connector) {
		return false
	}
	for _, pattern := range rule.Patterns {
		re, err := compilePattern(pattern)
		if err != nil {
			continue
		}
		for _, literal := range other.Patterns {
			if strings.HasPrefix(literal, "re:") || textutil.NormalizeName(literal) == textutil.NormalizeName(pattern) {
				continue
			}
			if re.MatchString(literal) {
				return true
			}
		}
	}
	return false
}
