package generate

import (
	"fmt"
	"path/filepath"
)

// Avatar is the style selector chosen on the kiosk before capture.
type Avatar string

const (
	AvatarMale   Avatar = "Male"
	AvatarFemale Avatar = "Female"
	AvatarBoy    Avatar = "Boy"
	AvatarGirl   Avatar = "Girl"
)

// Assets bundles the per-avatar generation inputs: the costume prompt and
// dress reference image for the portrait stage, and the anthem audio plus
// motion prompt for the video stage.
type Assets struct {
	CostumePrompt string
	DressImage    string // relative to the assets dir
	AnthemAudio   string // relative to the assets dir
	MotionPrompt  string
}

const backgroundScene = "The background is an illustration of the Dubai skyline " +
	"with Burj Khalifa and buildings in beige tones, a UAE flag on the left, " +
	"sand dunes, and a blue sky with clouds."

var catalog = map[Avatar]Assets{
	AvatarMale: {
		CostumePrompt: "A real half-body image of the man wearing a crisp white Emirati Kandura " +
			"with the red, green, white, and black UAE National Day sash draped over his shoulders. " + backgroundScene,
		DressImage:   filepath.Join("male", "dress.jpeg"),
		AnthemAudio:  filepath.Join("male", "anthem.mp3"),
		MotionPrompt: "The man is singing.",
	},
	AvatarFemale: {
		CostumePrompt: "A real half-body image of the woman wearing a black abaya with a UAE flag " +
			"colors embellished panel and a beige hijab. " + backgroundScene,
		DressImage:   filepath.Join("female", "dress.jpeg"),
		AnthemAudio:  filepath.Join("female", "anthem.mp3"),
		MotionPrompt: "The woman is singing.",
	},
	AvatarBoy: {
		CostumePrompt: "A real half-body image of the boy wearing an Emirati thobe. " + backgroundScene,
		DressImage:    filepath.Join("boy", "dress.jpeg"),
		AnthemAudio:   filepath.Join("boy", "anthem.mp3"),
		MotionPrompt:  "The boy is singing.",
	},
	AvatarGirl: {
		CostumePrompt: "A real half-body image of the girl wearing a UAE flag colors dress. " + backgroundScene,
		DressImage:    filepath.Join("girl", "dress.jpeg"),
		AnthemAudio:   filepath.Join("girl", "anthem.mp3"),
		MotionPrompt:  "The girl is singing.",
	},
}

// ParseAvatar validates a selector supplied by the kiosk front-end.
func ParseAvatar(s string) (Avatar, error) {
	a := Avatar(s)
	if _, ok := catalog[a]; !ok {
		return "", fmt.Errorf("unknown avatar selector: %q", s)
	}
	return a, nil
}

// AssetsFor returns the generation inputs for an avatar.
func AssetsFor(a Avatar) (Assets, bool) {
	as, ok := catalog[a]
	return as, ok
}

// Avatars lists the valid selectors.
func Avatars() []Avatar {
	return []Avatar{AvatarMale, AvatarFemale, AvatarBoy, AvatarGirl}
}
