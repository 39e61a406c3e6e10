// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BottleTag")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "bottletag.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "bottletag.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "bottletag")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "bottletag")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("service.address", ":8585")

	// 44 mL is a US standard 1.5 oz shot
	viper.SetDefault("inventory.standardpourml", 44.0)
	viper.SetDefault("inventory.fulltolerancepct", 3.0)
	viper.SetDefault("inventory.lowfillwarnpct", 2.0)
	viper.SetDefault("inventory.labelprefix", "BT-")
	viper.SetDefault("inventory.labelsuffixlength", 6)

	viper.SetDefault("anomaly.variancedroppct", -15.0)
	viper.SetDefault("anomaly.variancegainpct", 5.0)
}
