package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"
)

var DatabaseFile string
var MigrationsURL = "file://db/migrations"
var ProdFlag *bool

// CurrentSeason is the season predictions are made for. PreviousSeason gets
// concatenated onto every game log so early-season sample sizes stay usable.
var CurrentSeason = "2024-25"
var PreviousSeason = "2023-24"

var ValidSeasons = []string{
	"2024-25",
	"2023-24",
	"2022-23",
	"2021-22",
	"2020-21",
	"2019-20",
	"2018-19",
	"2017-18",
	"2016-17",
	"2015-16",
	"2014-15",
}

var ModelTypes = []string{
	"Linear Regression",
	"Polynomial Regression",
	"Boosted Trees",
}

var Categories = []string{
	"Points",
	"Assists",
	"Rebounds",
}

// stats.nba.com starts dropping connections if you hit it harder than this
var RequestsPerSecond = 1.0
var FetchRetries = 3
var FetchRetryDelay = 2 * time.Second

// MinGames is the smallest combined two-season game log worth modeling.
var MinGames = 5

func LoadConfig() error {
	ProdFlag = flag.BoolP("prod", "p", false, "designates production")
	flag.Parse()
	binPath, err := os.Executable()
	if err != nil {
		return err
	}
	fmt.Println(*ProdFlag)
	if *ProdFlag {
		DatabaseFile = "/sqlitedata/database.db"
	} else {
		DatabaseFile = filepath.Join(filepath.Dir(binPath), "database.db")
	}
	return nil
}
