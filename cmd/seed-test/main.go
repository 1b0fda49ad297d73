package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// sampleQuestions covers every question type the attempt client renders.
var sampleQuestions = []model.Question{
	{Text: "What is the SI unit of force?", Type: model.QuestionTypeMCQ,
		Options: []string{"Joule", "Newton", "Watt", "Pascal"}, Marks: 4, NegativeMarks: 1, CorrectAnswer: model.OptionAnswer(1)},
	{Text: "Which of these are vector quantities?", Type: model.QuestionTypeMultipleCorrect,
		Options: []string{"Velocity", "Mass", "Displacement", "Temperature"}, Marks: 4, NegativeMarks: 2, CorrectAnswer: model.OptionsAnswer(0, 2)},
	{Text: "Light travels faster in water than in vacuum.", Type: model.QuestionTypeTrueFalse,
		Options: []string{"True", "False"}, Marks: 2, NegativeMarks: 1, CorrectAnswer: model.OptionAnswer(1)},
	{Text: "A ball is dropped from rest. What is its speed in m/s after 2 s? (g = 9.8 m/s²)", Type: model.QuestionTypeNumerical,
		Marks: 4, CorrectAnswer: model.NumericAnswer("19.6")},
	{Text: "Which particle carries a negative charge?", Type: model.QuestionTypeMCQ,
		Options: []string{"Proton", "Neutron", "Electron", "Photon"}, Marks: 4, NegativeMarks: 1, CorrectAnswer: model.OptionAnswer(2)},
	{Text: "Which of these are SI base units?", Type: model.QuestionTypeMultipleCorrect,
		Options: []string{"Kelvin", "Litre", "Ampere", "Candela"}, Marks: 4, NegativeMarks: 2, CorrectAnswer: model.OptionsAnswer(0, 2, 3)},
	{Text: "Sound can travel through a vacuum.", Type: model.QuestionTypeTrueFalse,
		Options: []string{"True", "False"}, Marks: 2, NegativeMarks: 1, CorrectAnswer: model.OptionAnswer(1)},
	{Text: "What is the resistance in ohms of a wire carrying 2 A at 12 V?", Type: model.QuestionTypeNumerical,
		Marks: 4, CorrectAnswer: model.NumericAnswer("6")},
}

func main() {
	name := flag.String("name", "Physics Mock Test", "Test name")
	subject := flag.String("subject", "Physics", "Test subject")
	duration := flag.Int("duration", 30, "Duration in minutes")
	description := flag.String("description", "Sample mock test", "Short description shown before the test")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	test := &model.Test{
		Name:         *name,
		Subject:      *subject,
		Duration:     *duration,
		Description:  *description,
		Instructions: sampleInstructions,
	}
	if err := testRepo.Create(ctx, test); err != nil {
		log.Fatal().Err(err).Msg("Failed to create test")
	}

	for i, q := range sampleQuestions {
		q.TestID = test.ID
		q.Order = i + 1
		if err := questionRepo.Create(ctx, &q); err != nil {
			log.Fatal().Err(err).Int("order", q.Order).Msg("Failed to create question")
		}
	}

	log.Info().
		Str("test_id", test.ID.String()).
		Int("questions", len(sampleQuestions)).
		Msg("Seed completed")
	fmt.Println(test.ID)
}

const sampleInstructions = `## Before you begin

1. The timer starts when you start the test and keeps running if you leave.
2. Answers are saved as you go. Use Save & Next to move on.
3. Wrong answers on questions with negative marking lose marks.
4. The test is submitted automatically when time runs out.`
