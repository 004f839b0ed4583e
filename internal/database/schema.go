package database

import "math/rand"

const WorldRows = 10000

// CanonicalFortunes are the rows every fortune table starts with, keyed by position (id-1).
var CanonicalFortunes = []string{
	"fortune: No such file or directory",
	"A computer scientist is someone who fixes things that aren't broken.",
	"After enough decimal places, nobody gives a damn.",
	"A bad random number generator: 1, 1, 1, 1, 1, 4.33e+67, 1, 1, 1",
	"A computer program does what you tell it to do, not what you want it to do.",
	"Emacs is a nice operating system, but I prefer UNIX. — Tom Christaensen",
	"Any program that runs right is obsolete.",
	"A list is only as strong as its weakest link. — Donald Knuth",
	"Feature: A bug with seniority.",
	"Computers make very fast, very accurate mistakes.",
	`<script>alert("This should not be displayed in a browser alert box.");</script>`,
	"フレームワークのベンチマーク",
}

func GetMySQLWorldSchema() string {
	return `
		CREATE TABLE IF NOT EXISTS world (
			id INT NOT NULL,
			randomNumber INT NOT NULL DEFAULT 0,
			PRIMARY KEY (id)
		);
	`
}

func GetMySQLFortuneSchema() string {
	return `
		CREATE TABLE IF NOT EXISTS fortune (
			id INT NOT NULL,
			message VARCHAR(2048) CHARACTER SET utf8mb4 NOT NULL,
			PRIMARY KEY (id)
		);
	`
}

func GetPostgresWorldSchema() string {
	return `
		CREATE TABLE IF NOT EXISTS world (
			id INTEGER NOT NULL,
			randomnumber INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (id)
		);
	`
}

func GetPostgresFortuneSchema() string {
	return `
		CREATE TABLE IF NOT EXISTS fortune (
			id INTEGER NOT NULL,
			message VARCHAR(2048) NOT NULL,
			PRIMARY KEY (id)
		);
	`
}

/*
MongoDB document structure:

world: {
  _id: <int>,
  id: <int>,
  randomNumber: <int>
}

fortune: {
  _id: <int>,
  id: <int>,
  message: <string>
}
*/

// worldRows returns WorldRows (id, randomNumber) pairs with random numbers in [1, WorldRows].
func worldRows() [][2]int32 {
	rows := make([][2]int32, WorldRows)
	for i := range rows {
		rows[i] = [2]int32{int32(i + 1), int32(rand.Intn(WorldRows) + 1)}
	}
	return rows
}

// seededFortunes returns the ids written by InsertOneThousandFortunes.
func seededFortunes() []int32 {
	ids := make([]int32, SeededFortuneCount)
	for i := range ids {
		ids[i] = int32(SeededFortuneFirstID + i)
	}
	return ids
}
