package browser

// PageData is the structured metadata extractable from one authenticated
// platform page. On a community classroom page only the course listing
// (title + URL) is populated; navigating to a course page yields the full
// module/lesson tree for that course.
type PageData struct {
	Community string
	Courses   []Course
}

type Course struct {
	ID      string
	Title   string
	URL     string
	Modules []Module
}

type Module struct {
	ID      string
	Title   string
	Lessons []Lesson
}

type Lesson struct {
	ID               string
	Title            string
	VideoManifestURL string
	Body             string
	Attachments      []Attachment
}

type Attachment struct {
	Name string
	URL  string
}

// pageState mirrors the JSON blob the platforms embed in their pages
// (`<script id="__NEXT_DATA__">`). Only the fields the mirror needs are
// declared.
type pageState struct {
	Props struct {
		PageProps struct {
			Community struct {
				Name string `json:"name"`
			} `json:"currentCommunity"`
			Courses []stateCourse `json:"courses"`
			Course  *stateCourse  `json:"course"`
		} `json:"pageProps"`
	} `json:"props"`
}

type stateCourse struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	URL     string        `json:"url"`
	Modules []stateModule `json:"modules"`
}

type stateModule struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Lessons []stateLesson `json:"lessons"`
}

type stateLesson struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Video struct {
		ManifestURL string `json:"manifestUrl"`
	} `json:"video"`
	BodyMd      string `json:"bodyMd"`
	Attachments []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"attachments"`
}

func (s pageState) toPageData() *PageData {
	props := s.Props.PageProps

	out := &PageData{Community: props.Community.Name}

	courses := props.Courses
	if props.Course != nil {
		courses = append(courses, *props.Course)
	}
	for _, c := range courses {
		out.Courses = append(out.Courses, c.toCourse())
	}
	return out
}

func (c stateCourse) toCourse() Course {
	course := Course{ID: c.ID, Title: c.Title, URL: c.URL}
	for _, m := range c.Modules {
		module := Module{ID: m.ID, Title: m.Title}
		for _, l := range m.Lessons {
			lesson := Lesson{
				ID:               l.ID,
				Title:            l.Title,
				VideoManifestURL: l.Video.ManifestURL,
				Body:             l.BodyMd,
			}
			for _, a := range l.Attachments {
				lesson.Attachments = append(lesson.Attachments, Attachment{
					Name: a.Name,
					URL:  a.URL,
				})
			}
			module.Lessons = append(module.Lessons, lesson)
		}
		course.Modules = append(course.Modules, module)
	}
	return course
}
