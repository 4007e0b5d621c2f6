package main

import (
	"log"
	"os"
	"time"

	"github.com/gbl08ma/keybox"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/opencivic/disruptionsto/compute"
	"github.com/opencivic/disruptionsto/dataobjects"
)

var (
	rdb           *sqlx.DB
	rootSqalxNode sqalx.Node
	secrets       *keybox.Keybox
	mainLog       = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	schedulerLog  = log.New(os.Stdout, "scheduler", log.Ldate|log.Ltime)
	refreshLog    = log.New(os.Stdout, "refresh", log.Ldate|log.Ltime)

	matchHandler *compute.MatchHandler
	statsHandler *compute.StatsHandler

	// GitCommit is provided by govvv at compile-time
	GitCommit = "???"
	// BuildDate is provided by govvv at compile-time
	BuildDate = "???"
)

func main() {
	var err error
	mainLog.Println("Server starting, opening keybox...")
	secrets, err = keybox.Open(SecretsPath)
	if err != nil {
		mainLog.Fatalln(err)
	}
	mainLog.Println("Keybox opened")

	mainLog.Println("Opening database...")
	databaseURI, present := secrets.Get("databaseURI")
	if !present {
		mainLog.Fatalln("Database connection string not present in keybox")
	}
	rdb, err = sqlx.Open("postgres", databaseURI)
	if err != nil {
		mainLog.Fatalln(err)
	}
	defer rdb.Close()

	err = rdb.Ping()
	if err != nil {
		mainLog.Fatalln(err)
	}
	rdb.SetMaxOpenConns(MaxDBconnectionPoolSize)

	rootSqalxNode, err = sqalx.New(rdb)
	if err != nil {
		mainLog.Fatalln(err)
	}
	mainLog.Println("Database opened")

	compute.Initialize(rootSqalxNode, mainLog)

	statsHandler = compute.NewStatsHandler()
	// done like this to ensure rootSqalxNode is not nil at this point
	matchHandler = compute.NewMatchHandler(rootSqalxNode, mainLog,
		maxFuzzyDistance(), matchCacheMaxAge(), schedulerConfig().GeohashPrecision)

	err = SetUpSchedulers(rootSqalxNode)
	if err != nil {
		mainLog.Fatalln(err)
	}
	defer TearDownSchedulers()

	go StatsSender()

	for {
		if DEBUG {
			printLatestDisruption(rootSqalxNode)
		}
		time.Sleep(1 * time.Minute)
	}
}

func printLatestDisruption(node sqalx.Node) {
	tx, err := node.Beginx()
	if err != nil {
		mainLog.Println(err)
		return
	}
	defer tx.Commit() // read-only tx

	disruptions, err := dataobjects.GetActiveDisruptions(tx)
	if err != nil {
		mainLog.Println(err)
		return
	}
	if len(disruptions) == 0 {
		mainLog.Println("No active disruptions")
		return
	}
	latest := disruptions[len(disruptions)-1]
	mainLog.Println("Latest active disruption from", latest.CreatedAt, "title:", latest.Title)
}
