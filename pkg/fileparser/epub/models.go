package epub

type container struct {
	Rootfiles []rootfile `xml:"rootfiles>rootfile"`
}

func (c container) ContentFilePath() (string, bool) {
	for _, r := range c.Rootfiles {
		if r.MediaType == "application/oebps-package+xml" {
			return r.FullPath, true
		}
	}
	return "", false
}

type rootfile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opf struct {
	Manifest []manifest `xml:"manifest>item"`
	Spine    spine      `xml:"spine"`
}

type manifest struct {
	Id        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type spine struct {
	ItemRefs []itemref `xml:"itemref"`
}

type itemref struct {
	Idref string `xml:"idref,attr"`
}
