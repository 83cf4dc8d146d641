package models

import "time"

type EmailOTP struct {
	Email     string    `bson:"_id"`
	Code      string    `bson:"code"`
	CreatedAt time.Time `bson:"createdAt"`
}
