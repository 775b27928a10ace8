package listing

type PriceType string

const (
	PriceFixed      PriceType = "fixed"
	PriceNegotiable PriceType = "negotiable"
	PriceAuction    PriceType = "auction"
)

func (p PriceType) Valid() bool {
	switch p {
	case PriceFixed, PriceNegotiable, PriceAuction:
		return true
	}
	return false
}

type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
	FuelLPG      FuelType = "lpg"
	FuelCNG      FuelType = "cng"
)

func (f FuelType) Valid() bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelElectric, FuelHybrid, FuelLPG, FuelCNG:
		return true
	}
	return false
}

type Transmission string

const (
	TransmissionManual        Transmission = "manual"
	TransmissionAutomatic     Transmission = "automatic"
	TransmissionCVT           Transmission = "cvt"
	TransmissionSemiAutomatic Transmission = "semi_automatic"
)

func (t Transmission) Valid() bool {
	switch t {
	case TransmissionManual, TransmissionAutomatic, TransmissionCVT, TransmissionSemiAutomatic:
		return true
	}
	return false
}

type BodyType string

const (
	BodySedan       BodyType = "sedan"
	BodyHatchback   BodyType = "hatchback"
	BodySUV         BodyType = "suv"
	BodyCoupe       BodyType = "coupe"
	BodyConvertible BodyType = "convertible"
	BodyWagon       BodyType = "wagon"
	BodyPickup      BodyType = "pickup"
	BodyVan         BodyType = "van"
	BodyMinivan     BodyType = "minivan"
)

func (b BodyType) Valid() bool {
	switch b {
	case BodySedan, BodyHatchback, BodySUV, BodyCoupe, BodyConvertible, BodyWagon, BodyPickup, BodyVan, BodyMinivan:
		return true
	}
	return false
}

type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionVeryGood  Condition = "very_good"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionVeryGood, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

type ImageType string

const (
	ImageExterior ImageType = "exterior"
	ImageInterior ImageType = "interior"
	ImageEngine   ImageType = "engine"
	ImageDocument ImageType = "document"
	ImageOther    ImageType = "other"
)

func (i ImageType) Valid() bool {
	switch i {
	case ImageExterior, ImageInterior, ImageEngine, ImageDocument, ImageOther:
		return true
	}
	return false
}
