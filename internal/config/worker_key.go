package config

type WorkerKeyStruct struct {
	SessionSubmittedQueue  string
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SessionSubmittedQueue:  "session_submitted_queue",
	PersistViolationsQueue: "persist_violations_queue",
}
