// Package cards holds the static card catalog. Game records reference cards
// by index only; the texts are served once to clients so they can render
// indices locally.
package cards

// Questions are the prompt cards. Blanks are filled by the winning answer.
var Questions = []string{
	"My secret talent is ____.",
	"The real reason the meeting ran long: ____.",
	"You'll never believe it, but the fridge was full of ____.",
	"The next big startup idea: ____ as a service.",
	"Grandma's famous recipe calls for a pinch of ____.",
	"The museum's newest exhibit features ____.",
	"I knew the road trip was doomed when we packed ____.",
	"The motivational poster in the break room just says ____.",
	"Scientists have finally discovered ____.",
	"My autobiography will be titled 'A Life of ____'.",
	"The wifi password at the coffee shop is ____.",
	"Nothing ruins a picnic faster than ____.",
	"The school talent show was won by ____.",
	"In my defense, nobody told me about ____.",
	"The weather forecast for tomorrow: cloudy with a chance of ____.",
	"The last thing I searched for online was ____.",
	"My houseplant died because of ____.",
	"The new gym class everyone is talking about: ____.",
	"The time capsule from 1995 contained ____.",
	"I keep a spare ____ in my car, just in case.",
	"The neighbors complained about ____ again.",
	"My horoscope warned me about ____.",
	"The best part of waking up is ____.",
	"The committee voted unanimously for ____.",
}

// Answers are the cards dealt into player hands.
var Answers = []string{
	"a suspiciously friendly pigeon",
	"an unplugged toaster",
	"interpretive dance",
	"three raccoons in a trench coat",
	"lukewarm oatmeal",
	"a motivational bagpipe solo",
	"the world's largest rubber band ball",
	"an expired coupon",
	"aggressive small talk",
	"a glitter emergency",
	"my neighbor's lawn gnome collection",
	"an untranslatable sigh",
	"decaf coffee",
	"a surprisingly heavy envelope",
	"the office stapler",
	"a karaoke machine with no off switch",
	"mismatched socks",
	"an extremely confident toddler",
	"the last slice of pizza",
	"a haunted spreadsheet",
	"seventeen alarm clocks",
	"a very long voicemail",
	"artisanal ice cubes",
	"a trombone at midnight",
	"the hold music",
	"an escaped birthday balloon",
	"a drawer full of loose batteries",
	"somebody else's shopping list",
	"a self-checkout machine with opinions",
	"the fourth cup of coffee",
	"an ambitious squirrel",
	"a fog machine in the kitchen",
	"the missing sock dimension",
	"an overly dramatic weather vane",
	"a suspiciously quiet group chat",
	"the spare key under the doormat",
	"a vending machine that only takes exact change",
	"an encyclopedia of bad puns",
	"the neighbor's wind chimes",
	"a parade float shaped like a potato",
	"an unsolicited harmonica lesson",
	"the elevator button that does nothing",
	"a lifetime supply of packing peanuts",
	"an extremely local news story",
	"the one shopping cart with a broken wheel",
	"a meticulously labeled junk drawer",
	"an echo that talks back",
	"the instruction manual, unread",
}

// Deck names accepted by the card-mapping endpoint.
const (
	DeckQuestions = "questions"
	DeckAnswers   = "answers"
)

// ByName returns the texts for the named deck, or false for an unknown name.
func ByName(name string) ([]string, bool) {
	switch name {
	case DeckQuestions:
		return Questions, true
	case DeckAnswers:
		return Answers, true
	default:
		return nil, false
	}
}
