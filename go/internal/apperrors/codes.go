package apperrors

const CodeInternal = "INTERNAL"

var (
	ErrGameNotFound   = NotFound("GAME_NOT_FOUND", "game not found")
	ErrRoundNotFound  = NotFound("ROUND_NOT_FOUND", "round not found")
	ErrPlayerNotFound = NotFound("PLAYER_NOT_FOUND", "player not found")

	ErrInvalidName     = Validation("INVALID_NAME", "name must be between 2 and 20 characters")
	ErrInvalidCode     = Validation("INVALID_CODE", "invalid game code")
	ErrInvalidSettings = Validation("INVALID_SETTINGS", "invalid game settings")
	ErrInvalidLetter   = Validation("INVALID_LETTER", "letter must be a single A-Z character")
	ErrInvalidDuration = Validation("INVALID_DURATION", "invalid round duration")
	ErrInvalidAnswers  = Validation("INVALID_ANSWERS", "invalid answers")
	ErrInvalidRoundID  = Validation("INVALID_ROUND_ID", "round id must be positive")
	ErrInvalidPlayerID = Validation("INVALID_PLAYER_ID", "player id must be positive")
	ErrInvalidBody     = Validation("INVALID_BODY", "invalid request body")

	ErrLobbyLocked          = Conflict("LOBBY_LOCKED", "lobby is locked")
	ErrRoundAlreadyFinished = Conflict("ROUND_ALREADY_FINISHED", "round already finished")
	ErrRoundTimeExpired     = Conflict("ROUND_TIME_EXPIRED", "round time expired")
	ErrRoundInProgress      = Conflict("ROUND_IN_PROGRESS", "a round is already in progress")
	ErrGameFinished         = Conflict("GAME_FINISHED", "game already finished")
)
