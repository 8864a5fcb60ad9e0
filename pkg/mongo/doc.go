// Package mongo connects to MongoDB with the official v2 driver.
//
//	db, err := mongo.ConnectDatabase(ctx, config.MustLoad[mongo.Config]())
//	if err != nil {
//	    return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
// It backs the mongostore notification storage when STORE_DRIVER=mongo.
package mongo
