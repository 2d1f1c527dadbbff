// Package mail provides goGate.EmailSender implementations.
//
// LogSender writes messages to a zap logger, RedisQueue hands them to an external
// mailer through a Redis list, and Recorder keeps them in memory for tests.
package mail
