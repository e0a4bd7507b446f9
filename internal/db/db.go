package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectToDB connects to MONGODB_URI. The database name is the path of
// the uri, e.g. mongodb://localhost:27017/csss.
func ConnectToDB() (*mongo.Database, func(), error) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		return nil, nil, fmt.Errorf("MONGODB_URI not set")
	}

	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("parse MongoDB URI: %w", err)
	}

	dbName := strings.TrimPrefix(uri.Path, "/")
	if dbName == "" {
		dbName = "csss"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Errorf("error disconnecting MongoDB: %v", err)
		}
	}

	return client.Database(dbName), disconnect, nil
}

func CreateTTLIndexForCollection(db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	// documents expire at their own expires_at value
	indexModel := mongo.IndexModel{
		Keys:    bson.M{"expires_at": 1},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	_, err := collection.Indexes().CreateOne(context.TODO(), indexModel)
	if err != nil {
		return fmt.Errorf("create ttl index on %s: %w", collectionName, err)
	}
	return nil
}
