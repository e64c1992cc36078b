package database

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB is the shared PostgreSQL handle the database-backed store wraps.
var DB *gorm.DB

// Connect opens the PostgreSQL connection. With INSTANCE_CONNECTION_NAME
// set the connection goes through the managed Unix socket the host mounts
// under /cloudsql; otherwise it targets a local server over TCP.
func Connect() {
	var err error

	DB, err = gorm.Open(postgres.Open(buildDSN()), &gorm.Config{})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		panic(err)
	}

	log.Println("✅ Database connected successfully!")
}

func buildDSN() string {
	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}
	pass := os.Getenv("DB_PASS")
	name := os.Getenv("DB_NAME")
	if name == "" {
		name = "obrabot"
	}

	if instance := os.Getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		log.Printf("Connecting through managed socket: %s", instance)
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			instance, user, pass, name)
	}

	log.Println("Connecting to local PostgreSQL")
	return fmt.Sprintf("host=localhost user=%s password=%s dbname=%s port=5432 sslmode=disable",
		user, pass, name)
}
