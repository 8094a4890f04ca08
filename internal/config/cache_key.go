package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSubmitLockKey returns the lock key serializing submissions of one session
func (r *CacheKeyStruct) SessionSubmitLockKey(sessionID string) string {
	return fmt.Sprintf("session:%s:submit_lock", sessionID)
}

// StudentExamStartLockKey returns the lock key serializing starts for a student/exam pair
func (r *CacheKeyStruct) StudentExamStartLockKey(studentID, examID string) string {
	return fmt.Sprintf("student:%s:exam:%s:start_lock", studentID, examID)
}

// ExamPayloadKey returns the cache key for an exam definition and its questions
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
