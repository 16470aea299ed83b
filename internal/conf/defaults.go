// defaults.go: default configuration values
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for each configuration parameter.
func setDefaultConfig() {
	// Main
	viper.SetDefault("main.name", "podkeeper")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.logpath", "logs/")
	viper.SetDefault("main.loglevel", "info")

	// Output
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "podkeeper.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "podkeeper")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "podkeeper")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Routing
	viper.SetDefault("routing.enabled", true)
	viper.SetDefault("routing.nomatchrequiresreview", true)
	viper.SetDefault("routing.minclassificationconfidence", 0.5)
	viper.SetDefault("routing.defaultthreshold", 0.85)
	viper.SetDefault("routing.supplierthresholds", map[string]float64{})
	viper.SetDefault("routing.weights.classification", 0.4)
	viper.SetDefault("routing.weights.extraction", 0.3)
	viper.SetDefault("routing.weights.match", 0.3)
	viper.SetDefault("routing.cachettl", 5*time.Minute)

	// Matching
	viper.SetDefault("matching.exactjobrefthreshold", 1.0)
	viper.SetDefault("matching.exactplatethreshold", 0.95)
	viper.SetDefault("matching.fuzzyjobrefthreshold", 0.90)
	viper.SetDefault("matching.fuzzyplatethreshold", 0.85)
	viper.SetDefault("matching.minimumscore", 0.70)
	viper.SetDefault("matching.maxcandidates", 10)

	// Retention
	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.cleanuplimit", 500)
	viper.SetDefault("retention.policies", []map[string]any{
		{
			"policyid":            "pod-default",
			"retentiondays":       365,
			"gracedays":           30,
			"archivebeforedelete": true,
			"appliesto":           []string{"document"},
		},
	})

	// Archive
	viper.SetDefault("archive.path", "archives/")
	viper.SetDefault("archive.scratchpath", "scratch/")
	viper.SetDefault("archive.blobpath", "blobs/")
	viper.SetDefault("archive.purgeblobonharddelete", false)
}
