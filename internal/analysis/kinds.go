package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKind = errors.New("unknown analysis kind")

// Kind is the closed set of image analyses the service offers.
type Kind int

const (
	KindGeneral Kind = iota
	KindSkin
	KindXRay
	KindEye
	KindWound
	KindSymptom
)

var kindNames = map[Kind]string{
	KindGeneral: "general",
	KindSkin:    "skin",
	KindXRay:    "xray",
	KindEye:     "eye",
	KindWound:   "wound",
	KindSymptom: "symptom",
}

var kindPrompts = map[Kind]string{
	KindGeneral: `Analyze this medical image and provide:
1. **Visual Observations**: What do you see in the image?
2. **Potential Conditions**: What medical conditions could this indicate?
3. **Symptoms to Look For**: What symptoms should be monitored?
4. **Recommended Actions**: What should the healthcare provider consider?
5. **Urgency Level**: How urgent is this case?`,
	KindSkin: `Analyze this skin/dermatological image:
1. **Skin Lesion Assessment**: Describe the appearance, size, color, texture
2. **Potential Skin Conditions**: List possible dermatological conditions
3. **ABCDE Analysis**: If applicable, assess Asymmetry, Border, Color, Diameter, Evolution
4. **Risk Factors**: Identify any concerning features
5. **Recommendations**: Suggest next steps for evaluation`,
	KindXRay: `Analyze this X-ray/radiological image:
1. **Image Quality**: Comment on image clarity and positioning
2. **Anatomical Structures**: Identify visible structures
3. **Abnormal Findings**: Note any abnormalities or concerning features
4. **Possible Conditions**: Suggest potential diagnoses to consider
5. **Additional Imaging**: Recommend if other imaging might be needed`,
	KindEye: `Analyze this ophthalmological image:
1. **Eye Structure Assessment**: Describe visible eye structures
2. **Abnormalities**: Note any visible abnormalities or lesions
3. **Potential Eye Conditions**: List possible ocular conditions
4. **Symptoms to Monitor**: What symptoms should be watched for
5. **Specialist Referral**: When to refer to an ophthalmologist`,
	KindWound: `Analyze this wound/injury image:
1. **Wound Assessment**: Describe type, size, depth, and appearance
2. **Healing Stage**: Assess current healing phase
3. **Infection Signs**: Look for signs of infection or complications
4. **Treatment Considerations**: Suggest wound care approaches
5. **Monitoring**: What to watch for during healing`,
	KindSymptom: `Analyze this medical symptom image:
1. **Symptom Description**: Describe what you observe
2. **Possible Causes**: List potential underlying causes
3. **Associated Symptoms**: What other symptoms might be present
4. **Severity Assessment**: Evaluate the severity level
5. **Medical Attention**: When to seek immediate medical care`,
}

func Kinds() []Kind {
	return []Kind{KindGeneral, KindSkin, KindXRay, KindEye, KindWound, KindSymptom}
}

// ParseKind accepts "skin" as well as the longer "skin_analysis" form.
// Unknown names are an error, never a silent fallback to general.
func ParseKind(s string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimSuffix(strings.NewReplacer("-", "_", " ", "_").Replace(key), "_analysis")
	if key == "x_ray" {
		key = "xray"
	}
	for k, name := range kindNames {
		if name == key {
			return k, nil
		}
	}
	return KindGeneral, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Prompt() string {
	return kindPrompts[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
