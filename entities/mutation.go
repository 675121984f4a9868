package entities

// Mutation is one of the payloads a signer may submit. The set is closed: only the
// types in this package implement it.
type Mutation interface {
	mutation()
}

type Message struct {
	Message string `json:"message"`
}

type Active struct {
	Active bool `json:"active"`
}

type TriggerTick struct {
	Type uint8 `json:"ty"`
}

func (Message) mutation()     {}
func (Active) mutation()      {}
func (TriggerTick) mutation() {}
