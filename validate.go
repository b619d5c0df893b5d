package chatbox

import "fmt"

// ValidateMessage checks that a message's content blocks are valid for its role.
func ValidateMessage(msg Message) error {
	switch msg.Role {
	case RoleUser:
		return validateBlocks(msg.Content, msg.Role, allowText|allowImage|allowFile)
	case RoleAssistant:
		return validateBlocks(msg.Content, msg.Role, allowText|allowThinking|allowImage)
	case RoleSystem:
		return validateBlocks(msg.Content, msg.Role, allowText)
	default:
		return fmt.Errorf("unknown role %q: %w", msg.Role, ErrValidation)
	}
}

type blockAllow uint8

const (
	allowText blockAllow = 1 << iota
	allowThinking
	allowImage
	allowFile
)

func validateBlocks(blocks []ContentBlock, role Role, allowed blockAllow) error {
	for _, b := range blocks {
		switch b.(type) {
		case TextBlock:
			if allowed&allowText == 0 {
				return fmt.Errorf("TextBlock not allowed in %s message: %w", role, ErrValidation)
			}
		case ThinkingBlock:
			if allowed&allowThinking == 0 {
				return fmt.Errorf("ThinkingBlock not allowed in %s message: %w", role, ErrValidation)
			}
		case ImageBlock:
			if allowed&allowImage == 0 {
				return fmt.Errorf("ImageBlock not allowed in %s message: %w", role, ErrValidation)
			}
		case FileBlock:
			if allowed&allowFile == 0 {
				return fmt.Errorf("FileBlock not allowed in %s message: %w", role, ErrValidation)
			}
		default:
			return fmt.Errorf("unknown content block type %T in %s message: %w", b, role, ErrValidation)
		}
	}
	return nil
}
