package command

import "errors"

// Router-level errors. Like the game taxonomy these are user-facing chat
// replies, raised before the handler runs so a failed guard never leaves a
// partial side effect.
var (
	ErrUnknownCommand       = errors.New("unknown command. Try the \"help\" command")
	ErrInvalidArgumentCount = errors.New("invalid number of arguments")
	ErrPermissionDenied     = errors.New("you don't have the rights to use this command!")
	ErrRegistrationRequired = errors.New("you need to register using the \"register\" command!")
	ErrSystemFrozen         = errors.New("the season is being rolled over, please try again later")
)
