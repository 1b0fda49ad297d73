package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	GradeSessionsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	GradeSessionsQueue:  "grade_sessions_queue",
}
