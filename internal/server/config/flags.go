package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/penter405/cubetimer-backend/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-b string   table store backend ("sheets", "postgres" or "memory")
//	-i string   Google spreadsheet id
//	-g string   Google service-account credentials file
//	-d string   PostgreSQL DSN
//	-m string   MongoDB URI
//	-n string   MongoDB database name
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-o string   comma-separated CORS allow-list
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-i", "-g", "-d", "-m", "-n", "-s", "-t", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "table store backend")
	fs.StringVar(&config.SpreadsheetID, "i", config.SpreadsheetID, "Google spreadsheet id")
	fs.StringVar(&config.GoogleCredentialsFile, "g", config.GoogleCredentialsFile, "Google credentials file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MongoURI, "m", config.MongoURI, "MongoDB URI")
	fs.StringVar(&config.MongoDatabase, "n", config.MongoDatabase, "MongoDB database name")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")
	corsOrigins := fs.String("o", strings.Join(config.CORSAllowedOrigins, ","), "comma-separated CORS allow-list")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
	config.CORSAllowedOrigins = strings.Split(*corsOrigins, ",")
}
