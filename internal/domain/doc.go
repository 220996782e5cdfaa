// Package domain contains the core business entities of the application:
// the generation task, its lifecycle state machine, and the intake
// validation rules. It represents the heart of the system, independent of
// any specific infrastructure or delivery mechanism.
package domain
